// Package offer_answer реализует согласование медиа по модели offer/answer
// (RFC 3264) для SIP вызовов.
//
// Движок не разбирает и не формирует SDP текст: на вход он получает
// локальные возможности (SessionCapability) и разобранное удаленное
// описание (SessionDescription), на выходе возвращает Result с одним
// NegotiatedStream на каждую m-line предложения в том же порядке.
//
// Основные правила:
//   - количество и порядок потоков результата совпадают с предложением,
//     неподдерживаемые потоки отклоняются нулевым портом, но не удаляются;
//   - направление вычисляется как пересечение возможностей сторон;
//   - номера кодеков стабильны в пределах сессии (см. History);
//   - обязательное шифрование никогда не понижается до RTP без шифрования;
//   - неосновной поток bundle группы не имеет собственного RTCP адреса.
//
// Пример:
//
//	eng, err := offer_answer.NewEngine(offer_answer.DefaultConfig())
//	history, err := offer_answer.NewHistory(1024)
//	offer, err := eng.Negotiate(offer_answer.ModeOffer, local, nil, history)
//	// ... offer отправлен, получен ответ
//	res, err := eng.Negotiate(offer_answer.ModeOffer, local, answer, history)
//	// ... вызов завершен
//	history.Purge(local.SessionID)
package offer_answer
