package market

import (
	"strings"
	"testing"
	"time"
)

func TestCSVRoundTripMillis(t *testing.T) {
	in := []Candle{
		{OpenTime: 1_700_000_000_000, Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 3},
		{OpenTime: 1_700_000_060_000, Open: 10.5, High: 12, Low: 10, Close: 11.75, Volume: 4.25},
	}
	data := BuildCandleCSV(in, CandleCSVOptions{PricePrecision: PrecisionRaw, UnixMillis: true})
	out, err := ReadCandleCSV(strings.NewReader(data), nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d candles, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("candle %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestReadCandleCSVDateColumn(t *testing.T) {
	data := "date,open,high,low,close\n2024-01-02,1,2,0.5,1.5\n"
	out, err := ReadCandleCSV(strings.NewReader(data), time.UTC)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	if len(out) != 1 || out[0].OpenTime != want || out[0].Volume != 0 {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestReadCandleCSVRejectsShortRows(t *testing.T) {
	if _, err := ReadCandleCSV(strings.NewReader("1,2,3\n"), nil); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestCheckIntegrityFindsGaps(t *testing.T) {
	tf, err := ParseTimeframe("1m")
	if err != nil {
		t.Fatal(err)
	}
	step := int64(60_000)
	var cs []Candle
	for _, i := range []int64{0, 1, 2, 5, 6, 9} {
		cs = append(cs, Candle{OpenTime: i * step})
	}
	rep := CheckIntegrity(cs, tf)
	if rep.Expected != 10 || rep.Present != 6 {
		t.Fatalf("expected/present = %d/%d", rep.Expected, rep.Present)
	}
	if len(rep.Gaps) != 2 {
		t.Fatalf("gaps = %+v", rep.Gaps)
	}
	if rep.Gaps[0].From != 3*step || rep.Gaps[0].Count != 2 || rep.Gaps[1].Count != 2 {
		t.Fatalf("gaps = %+v", rep.Gaps)
	}
	if rep.Complete() {
		t.Fatal("report should not be complete")
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4H":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for raw, want := range cases {
		tf, err := ParseTimeframe(raw)
		if err != nil || tf.Duration != want {
			t.Fatalf("%s: got %v %v", raw, tf.Duration, err)
		}
	}
	for _, bad := range []string{"", "m", "0m", "5x"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
