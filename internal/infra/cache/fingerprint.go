package cache

import (
	"strconv"
	"strings"

	"pdf-export/internal/domain"
)

func settingsFingerprint(s domain.PageSettings) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	return strings.Join([]string{
		strconv.Itoa(s.ViewportWidth),
		strconv.Itoa(s.ViewportHeight),
		f(s.DeviceScaleFactor),
		f(s.PaperWidth),
		f(s.PaperHeight),
		f(s.Margin),
		strconv.FormatBool(s.PrintBackground),
	}, "|")
}
