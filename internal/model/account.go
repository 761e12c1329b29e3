package model

// Role distinguishes the observed account from the replicating ones.
type Role string

const (
	RoleMaster Role = "MASTER"
	RoleChild  Role = "CHILD"
)

// Account is a snapshot of one brokerage account as seen by the engine.
// The credential handle is opaque to the core; only the broker adapter
// knows how to turn it into an API session.
type Account struct {
	ID         string
	Role       Role
	Available  float64 // usable capital in account currency
	MaxCap     float64 // allocation ceiling, 0 means uncapped
	Credential string
}

// CapitalBase returns the capital figure used for ratio computation:
// available funds, clipped to the configured cap when one is set.
func (a Account) CapitalBase() float64 {
	if a.MaxCap > 0 && a.Available > a.MaxCap {
		return a.MaxCap
	}
	return a.Available
}
