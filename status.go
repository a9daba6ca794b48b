package avocet

// Status is the lifecycle state of a collection as reported by the server.
// Classification happens once, when the server payload is parsed; codes the
// client does not recognize become StatusCorrupted rather than failing.
type Status int

const (
	StatusNewBorn       Status = 1
	StatusUnloaded      Status = 2
	StatusLoaded        Status = 3
	StatusBeingUnloaded Status = 4
	StatusDeleted       Status = 5
	StatusCorrupted     Status = 6
)

func ParseStatus(code int) Status {
	switch s := Status(code); s {
	case StatusNewBorn, StatusUnloaded, StatusLoaded, StatusBeingUnloaded, StatusDeleted:
		return s
	default:
		return StatusCorrupted
	}
}

func (s Status) IsNewBorn() bool       { return s == StatusNewBorn }
func (s Status) IsUnloaded() bool      { return s == StatusUnloaded }
func (s Status) IsLoaded() bool        { return s == StatusLoaded }
func (s Status) IsBeingUnloaded() bool { return s == StatusBeingUnloaded }
func (s Status) IsDeleted() bool       { return s == StatusDeleted }
func (s Status) IsCorrupted() bool     { return s == StatusCorrupted }

func (s Status) String() string {
	switch s {
	case StatusNewBorn:
		return "new born"
	case StatusUnloaded:
		return "unloaded"
	case StatusLoaded:
		return "loaded"
	case StatusBeingUnloaded:
		return "being unloaded"
	case StatusDeleted:
		return "deleted"
	default:
		return "corrupted"
	}
}
