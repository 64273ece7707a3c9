package config

// ConfigBackend abstracts the platform's persistent config store.
// On macOS it is UserDefaults through the `defaults` CLI; elsewhere a
// JSON file under the XDG config dir. Durations are stored as strings
// and validated on read, so the backend only needs two value types.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
