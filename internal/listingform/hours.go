package listingform

import (
	"fmt"
	"strconv"
	"strings"
)

// To24h folds a 12-hour picker value into "HH:mm". Any empty part yields "".
func To24h(h, m, a string) string {
	if h == "" || m == "" || a == "" {
		return ""
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return ""
	}
	hh %= 12
	if a == "PM" {
		hh += 12
	}
	return fmt.Sprintf("%02d:%s", hh, m)
}

// From24h splits "HH:mm" into hour, minute and meridiem. Empty input gives
// empty hour and minute with "AM".
func From24h(t string) (h, m, a string) {
	hh, mm, _ := strings.Cut(t, ":")
	if hh == "" {
		return "", "", "AM"
	}
	n, err := strconv.Atoi(hh)
	if err != nil {
		return "", "", "AM"
	}
	a = "AM"
	if n >= 12 {
		a = "PM"
	}
	return fmt.Sprintf("%02d", (n+11)%12+1), mm, a
}
