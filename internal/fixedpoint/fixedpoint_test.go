package fixedpoint

import "testing"

func TestFromStringRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "-1", "12345.6789", "0.00000001", "-0.5"}
	for _, c := range cases {
		v, err := FromString(c)
		if err != nil {
			t.Fatalf("FromString(%q): %v", c, err)
		}
		got := v.Float64()
		want := mustFloat(t, c)
		if diff := got - want; diff > 1e-7 || diff < -1e-7 {
			t.Errorf("FromString(%q).Float64() = %v, want %v", c, got, want)
		}
	}
}

func mustFloat(t *testing.T, s string) float64 {
	t.Helper()
	v, err := FromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return v.Float64()
}

func TestAddSub(t *testing.T) {
	a, _ := FromString("10.5")
	b, _ := FromString("3.25")
	if got := a.Add(b).String(); got != "13.75000000" {
		t.Errorf("Add = %s, want 13.75000000", got)
	}
	if got := a.Sub(b).String(); got != "7.25000000" {
		t.Errorf("Sub = %s, want 7.25000000", got)
	}
}

func TestMulDiv(t *testing.T) {
	price, _ := FromString("100")
	qty, _ := FromString("0.5")
	quote := price.Mul(qty)
	if quote.Float64() != 50 {
		t.Errorf("Mul = %v, want 50", quote.Float64())
	}

	back := quote.Div(price)
	if back.Float64() != 0.5 {
		t.Errorf("Div = %v, want 0.5", back.Float64())
	}
}

func TestCmp(t *testing.T) {
	a := FromInt(10)
	b := FromInt(20)
	if a.Cmp(b) >= 0 {
		t.Error("expected a < b")
	}
	if !Min(a, b).Equal(a) {
		t.Error("Min should be a")
	}
	if !Max(a, b).Equal(b) {
		t.Error("Max should be b")
	}
}

func TestUnmarshalJSONAcceptsQuotedAndBareNumbers(t *testing.T) {
	var v Value
	if err := v.UnmarshalJSON([]byte(`"12345.678"`)); err != nil {
		t.Fatal(err)
	}
	if v.Float64() != 12345.678 {
		t.Errorf("got %v", v.Float64())
	}

	var v2 Value
	if err := v2.UnmarshalJSON([]byte(`42`)); err != nil {
		t.Fatal(err)
	}
	if v2.Float64() != 42 {
		t.Errorf("got %v", v2.Float64())
	}
}
