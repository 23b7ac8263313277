package store

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN  string
	Type DatabaseType
}

// Access tells why an ownership-gated operation did or didn't touch a
// profile. Callers outside the store collapse everything but AccessGranted
// into "nothing there".
type Access int

const (
	AccessGranted Access = iota
	AccessNotFound
	AccessDenied
	AccessProtected
)

func (a Access) Granted() bool {
	return a == AccessGranted
}

func (a Access) String() string {
	switch a {
	case AccessGranted:
		return "granted"
	case AccessNotFound:
		return "not_found"
	case AccessDenied:
		return "denied"
	case AccessProtected:
		return "protected"
	default:
		return "unknown"
	}
}

// SaveRequest carries the arguments of SaveProfile. ProfileID and
// ProfileName are both optional; zero values mean "not given".
type SaveRequest struct {
	Items       map[int64]int
	Options     map[string]string
	Last        bool
	ProfileID   int64
	ProfileName string
}
