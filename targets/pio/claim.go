package pio

import "errors"

var errUnitClaimed = errors.New("pio: state machine claimed elsewhere")

// claimer is the claim half of a state machine
type claimer interface {
	TryClaim() bool
}

// claimOnce claims sm unless this driver already owns it. Ownership is
// kept across DisableCompare so a re-enable does not race other claimers.
func claimOnce(owned *bool, sm claimer) error {
	if *owned {
		return nil
	}
	if !sm.TryClaim() {
		return errUnitClaimed
	}
	*owned = true
	return nil
}
