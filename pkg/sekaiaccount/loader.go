package sekaiaccount

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

// LoadDir scans dir for *.json account descriptor files and parses each
// entry per the dialect's schema. A file may contain a single object or an
// array of objects. Entries that fail to parse are logged with
// [<path>][<index>] and skipped; the loader never fails outright on a single
// bad entry.
func LoadDir(dir string, dialect sekairegion.Dialect, log zerolog.Logger) ([]Account, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("read account file failed")
			continue
		}

		var docs []json.RawMessage
		var arr []json.RawMessage
		if err := json.Unmarshal(b, &arr); err == nil {
			docs = arr
		} else {
			docs = []json.RawMessage{b}
		}

		for i, doc := range docs {
			account, err := parseOne(doc, dialect)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Int("index", i).Msg("parse account entry failed")
				continue
			}
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func parseOne(doc json.RawMessage, dialect sekairegion.Dialect) (Account, error) {
	if dialect == sekairegion.DialectNuverse {
		return ParseNuverse(doc)
	}
	return ParseCP(doc)
}
