package nuverse

import (
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
)

func vInt(n int64) *sekaicrypto.OrderedValue {
	return &sekaicrypto.OrderedValue{Kind: sekaicrypto.KindInt, Int: n}
}

func vStr(s string) *sekaicrypto.OrderedValue {
	return &sekaicrypto.OrderedValue{Kind: sekaicrypto.KindString, Str: s}
}

func vBool(b bool) *sekaicrypto.OrderedValue {
	return &sekaicrypto.OrderedValue{Kind: sekaicrypto.KindBool, Bool: b}
}

func vArr(vs ...*sekaicrypto.OrderedValue) *sekaicrypto.OrderedValue {
	return &sekaicrypto.OrderedValue{Kind: sekaicrypto.KindArray, Array: vs}
}

func vObj(pairs ...any) *sekaicrypto.OrderedValue {
	om := orderedmap.New[string, *sekaicrypto.OrderedValue]()
	for i := 0; i < len(pairs); i += 2 {
		om.Set(pairs[i].(string), pairs[i+1].(*sekaicrypto.OrderedValue))
	}
	return &sekaicrypto.OrderedValue{Kind: sekaicrypto.KindObject, Object: om}
}

func TestRestoreDictSimple(t *testing.T) {
	arrayData := toAnySlice([]*sekaicrypto.OrderedValue{vInt(1), vStr("hello"), vBool(true)})
	structure := []any{"id", "name", "active"}

	got := restoreDict(arrayData, structure)

	if got["id"] != int64(1) || got["name"] != "hello" || got["active"] != true {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestRestoreDictNested(t *testing.T) {
	arrayData := toAnySlice([]*sekaicrypto.OrderedValue{
		vInt(1),
		vArr(vArr(vInt(100), vInt(10)), vArr(vInt(200), vInt(20))),
	})
	structure := []any{
		"id",
		[]any{"costs", []any{"resourceId", "quantity"}},
	}

	got := restoreDict(arrayData, structure)

	if got["id"] != int64(1) {
		t.Fatalf("id = %v", got["id"])
	}
	costs, ok := got["costs"].([]any)
	if !ok || len(costs) != 2 {
		t.Fatalf("costs = %+v", got["costs"])
	}
	c0 := costs[0].(map[string]any)
	if c0["resourceId"] != int64(100) || c0["quantity"] != int64(10) {
		t.Fatalf("costs[0] = %+v", c0)
	}
	c1 := costs[1].(map[string]any)
	if c1["resourceId"] != int64(200) || c1["quantity"] != int64(20) {
		t.Fatalf("costs[1] = %+v", c1)
	}
}

func TestRestoreDictTuple(t *testing.T) {
	arrayData := toAnySlice([]*sekaicrypto.OrderedValue{vInt(1), vArr(vInt(100), vInt(10))})
	structure := []any{
		"id",
		[]any{"cost", map[string]any{"__tuple__": []any{"resourceId", "quantity"}}},
	}

	got := restoreDict(arrayData, structure)

	if got["id"] != int64(1) {
		t.Fatalf("id = %v", got["id"])
	}
	cost, ok := got["cost"].(map[string]any)
	if !ok {
		t.Fatalf("cost = %+v", got["cost"])
	}
	if cost["resourceId"] != int64(100) || cost["quantity"] != int64(10) {
		t.Fatalf("cost = %+v", cost)
	}
}

func TestRestoreCompactData(t *testing.T) {
	om := orderedmap.New[string, *sekaicrypto.OrderedValue]()
	om.Set("id", vArr(vInt(1), vInt(2), vInt(3)))
	om.Set("name", vArr(vStr("a"), vStr("b"), vStr("c")))

	rows := restoreCompactDataOrdered(om)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	want := []map[string]any{
		{"id": int64(1), "name": "a"},
		{"id": int64(2), "name": "b"},
		{"id": int64(3), "name": "c"},
	}
	for i, w := range want {
		got := rows[i].(map[string]any)
		if got["id"] != w["id"] || got["name"] != w["name"] {
			t.Fatalf("rows[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestRestoreCompactDataWithEnum(t *testing.T) {
	om := orderedmap.New[string, *sekaicrypto.OrderedValue]()
	om.Set("id", vArr(vInt(1), vInt(2)))
	om.Set("status", vArr(vInt(0), vInt(1)))
	om.Set("__ENUM__", vObj("status", vArr(vStr("inactive"), vStr("active"))))

	rows := restoreCompactDataOrdered(om)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	r0 := rows[0].(map[string]any)
	r1 := rows[1].(map[string]any)
	if r0["id"] != int64(1) || r0["status"] != "inactive" {
		t.Fatalf("rows[0] = %+v", r0)
	}
	if r1["id"] != int64(2) || r1["status"] != "active" {
		t.Fatalf("rows[1] = %+v", r1)
	}
}

func TestRestoreCompactDataWithEnumNonIntegerIndexIsNull(t *testing.T) {
	om := orderedmap.New[string, *sekaicrypto.OrderedValue]()
	om.Set("id", vArr(vInt(1), vInt(2), vInt(3)))
	om.Set("status", vArr(vInt(0), vStr("not-an-index"), vInt(5)))
	om.Set("__ENUM__", vObj("status", vArr(vStr("inactive"), vStr("active"))))

	rows := restoreCompactDataOrdered(om)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	r0 := rows[0].(map[string]any)
	r1 := rows[1].(map[string]any)
	r2 := rows[2].(map[string]any)
	if r0["status"] != "inactive" {
		t.Fatalf("rows[0].status = %v, want inactive", r0["status"])
	}
	if r1["status"] != nil {
		t.Fatalf("rows[1].status = %v, want nil for a non-integer index", r1["status"])
	}
	if r2["status"] != nil {
		t.Fatalf("rows[2].status = %v, want nil for an out-of-range index", r2["status"])
	}
}

func TestRestoreCompactMasterRenamesAndShadows(t *testing.T) {
	compactCards := vObj(
		"id", vArr(vInt(1), vInt(2)),
		"title", vArr(vStr("one"), vStr("two")),
	)
	master := vObj(
		"compactCards", compactCards,
		"cards", vStr("this raw key must be shadowed"),
		"events", vArr(vInt(1), vInt(2)),
	)

	restored, err := Restore(master, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := restored["compactCards"]; !ok {
		t.Fatalf("expected raw compactCards key preserved, got %+v", restored)
	}
	cards, ok := restored["cards"].([]any)
	if !ok || len(cards) != 2 {
		t.Fatalf("cards = %+v, want 2 restored rows", restored["cards"])
	}
	if c0 := cards[0].(map[string]any); c0["id"] != int64(1) || c0["title"] != "one" {
		t.Fatalf("cards[0] = %+v", c0)
	}

	events, ok := restored["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("events = %+v, want passthrough of raw array", restored["events"])
	}
}

func TestRestoreEventCardsMergesAndSorts(t *testing.T) {
	structures := map[string]any{
		"eventCards": []any{"cardId", "eventId"},
	}
	master := vObj(
		"eventCards", vArr(
			vArr(vInt(20), vInt(2)),
			vArr(vInt(10), vInt(1)),
		),
	)

	restored, err := Restore(master, structures)
	if err != nil {
		t.Fatal(err)
	}

	cards, ok := restored["eventCards"].([]any)
	if !ok {
		t.Fatalf("eventCards = %+v", restored["eventCards"])
	}
	var ids []int64
	for _, c := range cards {
		m := c.(map[string]any)
		id, _ := asInt64(m["cardId"])
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("eventCards not sorted ascending by cardId: %v", ids)
		}
	}
}
