package redirect

import (
	"encoding/xml"
	"fmt"
	"os"

	"arr/internal/errors"
	"arr/internal/identity"
)

// app.config binding-redirect schema. Unknown attributes are ignored by
// the decoder; structural or value errors abort the invocation.
type appConfig struct {
	XMLName xml.Name `xml:"configuration"`
	Runtime struct {
		AssemblyBinding []struct {
			DependentAssembly []struct {
				AssemblyIdentity struct {
					Name           string `xml:"name,attr"`
					PublicKeyToken string `xml:"publicKeyToken,attr"`
					Culture        string `xml:"culture,attr"`
				} `xml:"assemblyIdentity"`
				BindingRedirect []struct {
					OldVersion string `xml:"oldVersion,attr"`
					NewVersion string `xml:"newVersion,attr"`
				} `xml:"bindingRedirect"`
			} `xml:"dependentAssembly"`
		} `xml:"assemblyBinding"`
	} `xml:"runtime"`
}

// LoadAppConfig parses the explicit binding redirects from an XML
// application config file. Any malformed content yields an
// InvalidConfigFile error carrying the file name (and line, when the
// XML decoder knows it); per the error policy this aborts the
// invocation.
func LoadAppConfig(path string) ([]Redirect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidConfigFile, fmt.Sprintf("cannot read config file %s", path), err)
	}
	var cfg appConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		if syn, ok := err.(*xml.SyntaxError); ok {
			return nil, errors.New(errors.InvalidConfigFile,
				fmt.Sprintf("%s:%d: malformed config file", path, syn.Line), err)
		}
		return nil, errors.New(errors.InvalidConfigFile, fmt.Sprintf("%s: malformed config file", path), err)
	}

	var out []Redirect
	for _, binding := range cfg.Runtime.AssemblyBinding {
		for _, dep := range binding.DependentAssembly {
			if dep.AssemblyIdentity.Name == "" {
				return nil, errors.Newf(errors.InvalidConfigFile,
					"%s: dependentAssembly without assemblyIdentity name", path)
			}
			partial := identity.New(
				dep.AssemblyIdentity.Name,
				identity.ZeroVersion,
				dep.AssemblyIdentity.Culture,
				dep.AssemblyIdentity.PublicKeyToken,
				identity.ArchNone,
			)
			partial.HasVersion = false
			for _, br := range dep.BindingRedirect {
				oldRange, err := identity.ParseVersionRange(br.OldVersion)
				if err != nil {
					return nil, errors.New(errors.InvalidConfigFile,
						fmt.Sprintf("%s: bad oldVersion for %s", path, dep.AssemblyIdentity.Name), err)
				}
				newVersion, err := identity.ParseVersion(br.NewVersion)
				if err != nil {
					return nil, errors.New(errors.InvalidConfigFile,
						fmt.Sprintf("%s: bad newVersion for %s", path, dep.AssemblyIdentity.Name), err)
				}
				out = append(out, Redirect{
					Partial:    partial,
					Range:      oldRange,
					NewVersion: newVersion,
					Origin:     SourceConfig,
				})
			}
		}
	}
	return out, nil
}
