package cache

import "testing"

func TestKeyIsDeterministic(t *testing.T) {
	params := Params{Language: "fa", Limit: 5, Filters: map[string]string{"law": "civil", "year": "1400"}}
	a := Key("ماده ۱۷۹ چه می‌گوید؟", params)
	b := Key("ماده ۱۷۹ چه می‌گوید؟", params)
	if a != b {
		t.Fatalf("identical inputs produced different keys:\n%s\n%s", a, b)
	}
}

func TestKeyNormalizesWhitespaceAndCase(t *testing.T) {
	params := Params{Language: "en", Limit: 5}
	a := Key("What   is  Liability?", params)
	b := Key("what is liability?", params)
	if a != b {
		t.Fatal("whitespace/case variations must map to the same key")
	}
}

func TestKeyFilterOrderIrrelevant(t *testing.T) {
	a := Key("q", Params{Language: "fa", Limit: 5, Filters: map[string]string{"a": "1", "b": "2"}})
	b := Key("q", Params{Language: "fa", Limit: 5, Filters: map[string]string{"b": "2", "a": "1"}})
	if a != b {
		t.Fatal("filter map ordering must not change the key")
	}
}

func TestKeySensitiveToEveryInput(t *testing.T) {
	base := Key("q", Params{Language: "fa", Limit: 5})
	variants := []string{
		Key("q2", Params{Language: "fa", Limit: 5}),
		Key("q", Params{Language: "en", Limit: 5}),
		Key("q", Params{Language: "fa", Limit: 10}),
		Key("q", Params{Language: "fa", Limit: 5, Filters: map[string]string{"law": "civil"}}),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base key", i)
		}
	}
}
