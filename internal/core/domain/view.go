package domain

type ViewStatus int

const (
	ViewIdle ViewStatus = iota
	ViewLoading
	ViewReady
	ViewFailed
)

func (s ViewStatus) String() string {
	switch s {
	case ViewIdle:
		return "idle"
	case ViewLoading:
		return "loading"
	case ViewReady:
		return "ready"
	case ViewFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ViewStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
