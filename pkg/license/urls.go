package license

// URL returns the reference text location for a well-known identifier, or ""
// when none is known.
func URL(id string) string {
	switch id {
	case "MIT":
		return "https://opensource.org/licenses/MIT"
	case "Apache-2.0":
		return "https://www.apache.org/licenses/LICENSE-2.0"
	case "BSD-3-Clause":
		return "https://opensource.org/licenses/BSD-3-Clause"
	case "BSD-2-Clause":
		return "https://opensource.org/licenses/BSD-2-Clause"
	case "GPL-3.0", "GPL-3.0-only", "GPL-3.0-or-later":
		return "https://www.gnu.org/licenses/gpl-3.0.html"
	case "GPL-2.0", "GPL-2.0-only", "GPL-2.0-or-later":
		return "https://www.gnu.org/licenses/gpl-2.0.html"
	case "LGPL-3.0", "LGPL-3.0-only", "LGPL-3.0-or-later":
		return "https://www.gnu.org/licenses/lgpl-3.0.html"
	case "ISC":
		return "https://opensource.org/licenses/ISC"
	case "MPL-2.0":
		return "https://www.mozilla.org/en-US/MPL/2.0/"
	case "Unlicense":
		return "https://unlicense.org/"
	case "Zlib":
		return "https://opensource.org/licenses/Zlib"
	case "Unicode-DFS-2016", "Unicode-3.0":
		return "https://www.unicode.org/license.txt"
	case "0BSD":
		return "https://opensource.org/licenses/0BSD"
	case "CC0-1.0":
		return "https://creativecommons.org/publicdomain/zero/1.0/"
	default:
		return ""
	}
}
