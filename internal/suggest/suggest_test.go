package suggest

import (
	"reflect"
	"testing"
)

func TestNames_ClosestFirst(t *testing.T) {
	valid := []string{"Arun", "Aron", "Mei", "Zoe"}

	got := Names("arum", valid)
	if len(got) == 0 || got[0] != "Arun" {
		t.Fatalf("Names(arum) = %v, want Arun first", got)
	}
}

func TestNames_CaseInsensitive(t *testing.T) {
	got := Names("MEI", []string{"Mei"})
	if !reflect.DeepEqual(got, []string{"Mei"}) {
		t.Fatalf("Names(MEI) = %v, want [Mei]", got)
	}
}

func TestNames_NothingClose(t *testing.T) {
	if got := Names("xqzzyw", []string{"Arun", "Mei"}); got != nil {
		t.Fatalf("Names(xqzzyw) = %v, want nil", got)
	}
}

func TestNames_CapsAtThree(t *testing.T) {
	valid := []string{"squat", "squats", "squatz", "squash", "deadlift"}
	got := Names("sqat", valid)
	if len(got) != 3 {
		t.Fatalf("Names(sqat) = %v, want 3 suggestions", got)
	}
	if got[0] != "squat" {
		t.Fatalf("Names(sqat) = %v, want squat first", got)
	}
}
