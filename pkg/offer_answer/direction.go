package offer_answer

import "strings"

// Direction направление медиа потока (a=sendrecv и т.д.)
type Direction int

const (
	SendRecv Direction = iota
	SendOnly
	RecvOnly
	Inactive
)

func (d Direction) String() string {
	switch d {
	case SendRecv:
		return "sendrecv"
	case SendOnly:
		return "sendonly"
	case RecvOnly:
		return "recvonly"
	case Inactive:
		return "inactive"
	}
	return "unknown"
}

// ParseDirection разбирает имя атрибута направления
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sendrecv":
		return SendRecv, true
	case "sendonly":
		return SendOnly, true
	case "recvonly":
		return RecvOnly, true
	case "inactive":
		return Inactive, true
	}
	return SendRecv, false
}

// CanSend проверяет возможность отправки
func (d Direction) CanSend() bool {
	return d == SendRecv || d == SendOnly
}

// CanRecv проверяет возможность приема
func (d Direction) CanRecv() bool {
	return d == SendRecv || d == RecvOnly
}

// Mirror направление с точки зрения другой стороны
func (d Direction) Mirror() Direction {
	switch d {
	case SendOnly:
		return RecvOnly
	case RecvOnly:
		return SendOnly
	}
	return d
}

func directionOf(send, recv bool) Direction {
	switch {
	case send && recv:
		return SendRecv
	case send:
		return SendOnly
	case recv:
		return RecvOnly
	}
	return Inactive
}

// Intersect направление с точки зрения локальной стороны по RFC 3264:
// отправляем, только если мы хотим отправлять и удаленная сторона готова
// принимать, и наоборот. Inactive у любой стороны дает Inactive.
//
// Используется и при ответе на offer (remote - предложенное направление),
// и при обработке answer (remote - направление из ответа).
func Intersect(local, remote Direction) Direction {
	return directionOf(local.CanSend() && remote.CanRecv(), local.CanRecv() && remote.CanSend())
}
