package builder

import (
	"strings"

	"github.com/openclaw/openclaw/pkg/types"
)

// knownAptPackages are names agents commonly request as pip packages that
// are actually Debian system packages
var knownAptPackages = map[string]bool{
	"redis-server":               true,
	"redis-tools":                true,
	"postgresql":                 true,
	"postgresql-client":          true,
	"mysql-client":               true,
	"default-libmysqlclient-dev": true,
	"sqlite3":                    true,
	"libsqlite3-dev":             true,
	"nginx":                      true,
	"apache2":                    true,
	"ffmpeg":                     true,
	"imagemagick":                true,
	"graphviz":                   true,
	"tesseract-ocr":              true,
	"poppler-utils":              true,
	"wkhtmltopdf":                true,
	"chromium":                   true,
	"chromium-browser":           true,
	"libreoffice":                true,
	"gcc":                        true,
	"g++":                        true,
	"make":                       true,
	"cmake":                      true,
	"build-essential":            true,
	"curl":                       true,
	"wget":                       true,
	"git":                        true,
	"jq":                         true,
	"zip":                        true,
	"unzip":                      true,
	"libffi-dev":                 true,
	"libssl-dev":                 true,
	"libxml2-dev":                true,
	"libxslt1-dev":               true,
	"libjpeg-dev":                true,
	"libpng-dev":                 true,
	"zlib1g-dev":                 true,
	"libpq-dev":                  true,
}

// NormalizeCapabilities expands comma-separated names into individual
// capabilities and reclassifies known system packages to apt. Pip names
// with a lib prefix are treated as system packages too; agents tend to
// ask for C library headers through pip.
func NormalizeCapabilities(caps []types.Capability) []types.Capability {
	expanded := make([]types.Capability, 0, len(caps))
	for _, cap := range caps {
		for _, raw := range strings.Split(cap.Name, ",") {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			kind := cap.Kind
			if knownAptPackages[name] {
				kind = "apt_package"
			} else if kind == "pip_package" && strings.HasPrefix(name, "lib") {
				kind = "apt_package"
			}
			expanded = append(expanded, types.Capability{
				Kind:    kind,
				Name:    name,
				Version: cap.Version,
			})
		}
	}
	return expanded
}

// partition splits normalized capabilities into the four install classes,
// applying per-class version pinning syntax
func partition(caps []types.Capability) (apt, pip, npm, tools []string) {
	for _, cap := range caps {
		switch cap.Kind {
		case "apt_package":
			if cap.Version != "" {
				apt = append(apt, cap.Name+"="+cap.Version)
			} else {
				apt = append(apt, cap.Name)
			}
		case "pip_package":
			if cap.Version != "" {
				pip = append(pip, cap.Name+"=="+cap.Version)
			} else {
				pip = append(pip, cap.Name)
			}
		case "npm_package":
			if cap.Version != "" {
				npm = append(npm, cap.Name+"@"+cap.Version)
			} else {
				npm = append(npm, cap.Name)
			}
		case "tool":
			tools = append(tools, cap.Name)
		}
	}
	return apt, pip, npm, tools
}
