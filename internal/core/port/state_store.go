package port

// EntityStateStore persists the user controlled state of switches and numbers across restarts.
type EntityStateStore interface {
	LoadSwitch(entityId string) (*bool, error)
	SaveSwitch(entityId string, value bool) error
	LoadNumber(entityId string) (*float64, error)
	SaveNumber(entityId string, value float64) error
	Close() error
}
