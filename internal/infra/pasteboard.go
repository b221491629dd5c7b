package infra

import (
	"strconv"
	"strings"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

// appleScriptClasses maps the class tokens reported by AppleScript's
// `clipboard info` to domain type tags. Several classes collapse onto the
// same tag (plain text has utf8, utf16 and legacy string renditions).
var appleScriptClasses = map[string]string{
	"«class url »": domain.TypeURL,
	"«class furl»": domain.TypeFileURL,
	"«class RTF »": domain.TypeRTF,
	"«class utf8»": domain.TypePlainText,
	"«class ut16»": domain.TypePlainText,
	"string":       domain.TypePlainText,
	"«class PDF »": domain.TypePDF,
	"«class PNGf»": domain.TypePNG,
	"«class TIFF»": domain.TypeTIFF,
	"picture":      domain.TypeTIFF,
}

// parseClipboardInfo parses `osascript -e 'clipboard info'` output, a flat
// comma-separated list alternating class token and byte size, e.g.
//
//	«class utf8», 13, string, 13, «class RTF », 512
//
// Unrecognized classes are ignored. When a tag appears through multiple
// classes the largest reported size wins.
func parseClipboardInfo(out string) map[string]int {
	sizes := map[string]int{}

	tokens := strings.Split(strings.TrimSpace(out), ",")
	for i := 0; i+1 < len(tokens); i += 2 {
		class := strings.TrimSpace(tokens[i])
		size, err := strconv.Atoi(strings.TrimSpace(tokens[i+1]))
		if err != nil {
			// Re-sync: this token wasn't a size, treat it as a class.
			i--
			continue
		}

		tag, ok := appleScriptClasses[class]
		if !ok {
			continue
		}
		if size > sizes[tag] {
			sizes[tag] = size
		}
	}

	return sizes
}
