package ledger

import (
	"fmt"
	"regexp"
)

// AccountID identifica uma conta do ledger (ex: "alice.near", "ledger.poc")
type AccountID string

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// Validate aplica as regras de formato de account id do NEAR
func (a AccountID) Validate() error {
	if len(a) < minAccountIDLen || len(a) > maxAccountIDLen || !accountIDPattern.MatchString(string(a)) {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, string(a))
	}
	return nil
}

func (a AccountID) String() string { return string(a) }
