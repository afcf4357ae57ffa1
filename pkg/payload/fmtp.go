package payload

import "strings"

// fmtpParam один параметр из строки a=fmtp (key=value или флаг без значения)
type fmtpParam struct {
	key   string
	value string
	flag  bool
}

func parseFmtp(fmtp string) []fmtpParam {
	var params []fmtpParam
	for _, part := range strings.Split(fmtp, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		params = append(params, fmtpParam{
			key:   strings.TrimSpace(key),
			value: strings.TrimSpace(value),
			flag:  !found,
		})
	}
	return params
}

func formatFmtp(params []fmtpParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.flag {
			parts = append(parts, p.key)
			continue
		}
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, ";")
}

// FmtpValue возвращает значение параметра из строки fmtp (имя без учета регистра)
func FmtpValue(fmtp, key string) (string, bool) {
	for _, p := range parseFmtp(fmtp) {
		if strings.EqualFold(p.key, key) {
			return p.value, true
		}
	}
	return "", false
}

// SetFmtpValue заменяет или добавляет параметр в строку fmtp
func SetFmtpValue(fmtp, key, value string) string {
	params := parseFmtp(fmtp)
	for i := range params {
		if strings.EqualFold(params[i].key, key) {
			params[i].value = value
			params[i].flag = false
			return formatFmtp(params)
		}
	}
	return formatFmtp(append(params, fmtpParam{key: key, value: value}))
}

// AppendFmtp дописывает в base параметры из extra, которых там еще нет.
// Существующие значения base не перезаписываются.
func AppendFmtp(base, extra string) string {
	if extra == "" {
		return base
	}
	params := parseFmtp(base)
	for _, e := range parseFmtp(extra) {
		exists := false
		for _, p := range params {
			if strings.EqualFold(p.key, e.key) {
				exists = true
				break
			}
		}
		if !exists {
			params = append(params, e)
		}
	}
	return formatFmtp(params)
}

// criticalFmtpParams параметры, от которых зависит совместимость кодека.
// Если обе стороны указали параметр, значения обязаны совпасть.
var criticalFmtpParams = map[string][]string{
	"h264": {"packetization-mode"},
	"vp9":  {"profile-id"},
	"av1":  {"profile"},
}

// fmtpOf возвращает строку параметров записи с учетом того, откуда она пришла:
// у удаленных записей действуют send-параметры, у локальных - recv.
func fmtpOf(pt *PayloadType, remote bool) string {
	if remote {
		if pt.SendFmtp != "" {
			return pt.SendFmtp
		}
		return pt.RecvFmtp
	}
	if pt.RecvFmtp != "" {
		return pt.RecvFmtp
	}
	return pt.SendFmtp
}

// fmtpCompatible проверяет критичные параметры для пары локальный/удаленный
func fmtpCompatible(local, remote *PayloadType) bool {
	keys, ok := criticalFmtpParams[strings.ToLower(local.MimeType)]
	if !ok {
		return true
	}
	lf, rf := fmtpOf(local, false), fmtpOf(remote, true)
	for _, key := range keys {
		lv, lok := FmtpValue(lf, key)
		rv, rok := FmtpValue(rf, key)
		if lok && rok && !strings.EqualFold(lv, rv) {
			return false
		}
	}
	return true
}

// inheritCriticalFmtp переносит критичные параметры, указанные только одной
// стороной, в объединенную запись.
func inheritCriticalFmtp(merged, local, remote *PayloadType) {
	keys, ok := criticalFmtpParams[strings.ToLower(local.MimeType)]
	if !ok {
		return
	}
	lf, rf := fmtpOf(local, false), fmtpOf(remote, true)
	for _, key := range keys {
		lv, lok := FmtpValue(lf, key)
		rv, rok := FmtpValue(rf, key)
		switch {
		case rok && !lok:
			merged.RecvFmtp = SetFmtpValue(merged.RecvFmtp, key, rv)
		case lok && !rok:
			merged.SendFmtp = SetFmtpValue(merged.SendFmtp, key, lv)
		}
	}
}
