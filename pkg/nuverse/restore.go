// Package nuverse restores the Nuverse dialect's packed ("compact" and
// structure-encoded) master-data tables into their expanded, human-shaped
// form.
package nuverse

import (
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
)

// Restore expands a Nuverse master-data bundle according to structures (the
// nuverse_structure_file_path config, decoded as plain JSON). Keys prefixed
// "compact" are column-major-decompacted and reinserted under their
// decapitalized suffix, shadowing any later same-named raw key. Other keys
// with a matching entry in structures are expanded via restoreDict.
// eventCards additionally merges with the object-shaped entries of its
// un-restored form, de-duplicating by cardId and sorting ascending.
func Restore(master *sekaicrypto.OrderedValue, structures map[string]any) (map[string]any, error) {
	if master == nil || master.Kind != sekaicrypto.KindObject {
		return nil, apperror.New(apperror.KindParseError, "nuverse master data is not an object")
	}

	restoredCompact := make(map[string]any)
	processed := make(map[string]any)
	restoredFromCompact := make(map[string]bool)

	for pair := master.Object.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		value := pair.Value

		if newKeySuffix, ok := strings.CutPrefix(key, "compact"); ok {
			restoredCompact[key] = toAny(value)
			if value.Kind == sekaicrypto.KindObject && newKeySuffix != "" {
				rows := restoreCompactDataOrdered(value.Object)
				newKey := strings.ToLower(newKeySuffix[:1]) + newKeySuffix[1:]
				restoredCompact[newKey] = rows
				restoredFromCompact[newKey] = true
			}
			continue
		}
		if restoredFromCompact[key] {
			continue
		}

		var valAny any
		if structure, ok := structures[key]; ok {
			if structArr, ok := structure.([]any); ok && value.Kind == sekaicrypto.KindArray {
				restored := make([]any, 0, len(value.Array))
				for _, item := range value.Array {
					if item.Kind == sekaicrypto.KindArray {
						restored = append(restored, restoreDict(toAnySlice(item.Array), structArr))
					}
				}
				valAny = restored
			} else {
				valAny = toAny(value)
			}
		} else {
			valAny = toAny(value)
		}
		processed[key] = valAny

		if key == "eventCards" {
			processed[key] = mergeEventCards(value, valAny)
		}
	}

	for k, v := range processed {
		if _, exists := restoredCompact[k]; !exists {
			restoredCompact[k] = v
		}
	}
	return restoredCompact, nil
}

func mergeEventCards(rawValue *sekaicrypto.OrderedValue, processedAny any) any {
	processedArr, ok := processedAny.([]any)
	if !ok {
		return processedAny
	}
	existingIDs := map[int64]bool{}
	for _, item := range processedArr {
		if m, ok := item.(map[string]any); ok {
			if id, ok := asInt64(m["cardId"]); ok {
				existingIDs[id] = true
			}
		}
	}

	rawSlice := toAnySlice(rawValue.Array)
	merged := make([]any, 0, len(rawSlice)+len(processedArr))
	for _, item := range rawSlice {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := asInt64(m["cardId"]); ok && existingIDs[id] {
			continue
		}
		merged = append(merged, item)
	}
	merged = append(merged, processedArr...)

	sort.SliceStable(merged, func(i, j int) bool {
		ai, _ := asInt64(cardID(merged[i]))
		aj, _ := asInt64(cardID(merged[j]))
		return ai < aj
	})
	return merged
}

func cardID(v any) any {
	if m, ok := v.(map[string]any); ok {
		return m["cardId"]
	}
	return nil
}

// restoreDict zips an array of decompacted values with a structure
// describing how to name (or nest) each element.
func restoreDict(arrayData, keyStructure []any) map[string]any {
	result := make(map[string]any)
	n := len(keyStructure)
	if len(arrayData) < n {
		n = len(arrayData)
	}
	for i := 0; i < n; i++ {
		key := keyStructure[i]
		value := arrayData[i]
		if value == nil {
			continue
		}
		switch k := key.(type) {
		case string:
			result[k] = value
		case []any:
			if len(k) < 2 {
				continue
			}
			fieldName, _ := k[0].(string)
			switch sub := k[1].(type) {
			case []any:
				if valueArr, ok := value.([]any); ok {
					restored := make([]any, 0, len(valueArr))
					for _, subItem := range valueArr {
						if subItem == nil {
							continue
						}
						if arr, ok := subItem.([]any); ok {
							restored = append(restored, restoreDict(arr, sub))
						} else {
							restored = append(restored, subItem)
						}
					}
					result[fieldName] = restored
				}
			case map[string]any:
				if tupleKeysRaw, ok := sub["__tuple__"]; ok {
					if tupleKeys, ok := tupleKeysRaw.([]any); ok {
						if valueArr, ok := value.([]any); ok {
							dict := make(map[string]any)
							for idx, v := range valueArr {
								if v == nil || idx >= len(tupleKeys) {
									continue
								}
								if keyName, ok := tupleKeys[idx].(string); ok {
									dict[keyName] = v
								}
							}
							result[fieldName] = dict
						}
					}
				}
			}
		}
	}
	return result
}

// restoreCompactDataOrdered turns a column-major compact object into a list
// of row maps, preserving the source column order for the (rare) case where
// a non-array column value causes positional misalignment between column
// labels and columns — matching the reference implementation exactly rather
// than guarding against it.
func restoreCompactDataOrdered(om *orderedmap.OrderedMap[string, *sekaicrypto.OrderedValue]) []any {
	var enumDef map[string]any
	if ev, ok := om.Get("__ENUM__"); ok {
		enumDef, _ = toAny(ev).(map[string]any)
	}

	var labels []string
	var columns [][]any
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		col := pair.Key
		if col == "__ENUM__" {
			continue
		}
		labels = append(labels, col)
		if pair.Value.Kind != sekaicrypto.KindArray {
			continue
		}
		arr := toAnySlice(pair.Value.Array)

		if enumDef != nil {
			if enumValsRaw, ok := enumDef[col]; ok {
				if enumVals, ok := enumValsRaw.([]any); ok {
					mapped := make([]any, len(arr))
					for i, idx := range arr {
						switch ii := idx.(type) {
						case nil:
							mapped[i] = nil
						case int64:
							if ii >= 0 && int(ii) < len(enumVals) {
								mapped[i] = enumVals[ii]
							} else {
								mapped[i] = nil
							}
						default:
							// out-of-range or non-integer index produces null, per
							// the reference implementation's enum-restore behavior.
							mapped[i] = nil
						}
					}
					columns = append(columns, mapped)
					continue
				}
			}
		}
		columns = append(columns, arr)
	}

	if len(columns) == 0 {
		return nil
	}
	numEntries := len(columns[0])
	for _, c := range columns {
		if len(c) < numEntries {
			numEntries = len(c)
		}
	}
	result := make([]any, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		entry := make(map[string]any, len(labels))
		for li, label := range labels {
			if li < len(columns) {
				entry[label] = columns[li][i]
			}
		}
		result = append(result, entry)
	}
	return result
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toAnySlice(vs []*sekaicrypto.OrderedValue) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = toAny(v)
	}
	return out
}

func toAny(v *sekaicrypto.OrderedValue) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case sekaicrypto.KindNull:
		return nil
	case sekaicrypto.KindBool:
		return v.Bool
	case sekaicrypto.KindInt:
		return v.Int
	case sekaicrypto.KindFloat:
		return v.Float
	case sekaicrypto.KindString:
		return v.Str
	case sekaicrypto.KindArray:
		return toAnySlice(v.Array)
	case sekaicrypto.KindObject:
		out := make(map[string]any, v.Object.Len())
		for pair := v.Object.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = toAny(pair.Value)
		}
		return out
	default:
		return nil
	}
}
