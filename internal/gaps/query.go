package gaps

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidView is returned for view names that are not plain dotted identifiers.
var ErrInvalidView = errors.New("invalid warehouse view name")

var viewPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z_][A-Za-z0-9_-]*){0,2}$`)

// missingDaysQuery builds the read-only query over the missing-days view.
// Identifiers cannot be bound as parameters, so the name is validated instead.
func missingDaysQuery(view string, quote func(string) string) (string, error) {
	if !viewPattern.MatchString(view) {
		return "", fmt.Errorf("%w: %q", ErrInvalidView, view)
	}
	return fmt.Sprintf("SELECT station_id, date FROM %s ORDER BY station_id, date", quote(view)), nil
}

func backtick(view string) string {
	return "`" + view + "`"
}

func bare(view string) string {
	return view
}
