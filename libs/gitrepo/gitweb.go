package gitrepo

import (
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Owner reads gitweb.owner from the repository config
func (r *Repository) Owner() (owner string, ok bool) {
	return ReadConfigValue(r.path, "gitweb", "owner")
}

// ReadConfigValue reads section.key from the git config file of the
// repository at path. A missing file, section or key, or a config the parser
// rejects, yields ok == false.
func ReadConfigValue(path, section, key string) (value string, ok bool) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:      true,
		AllowBooleanKeys: true,
	}, filepath.Join(path, "config"))
	if err != nil {
		return "", false
	}

	sec, err := cfg.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return "", false
	}

	return sec.Key(key).String(), true
}
