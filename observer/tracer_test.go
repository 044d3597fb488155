package observer

import (
	"context"
	"errors"
	"testing"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

func TestTracerNoProviderIsSafe(t *testing.T) {
	tr := NewTracer()

	ctx, span := tr.Start(context.Background(), "test.operation",
		gromozeka.StringAttr("k", "v"))
	if ctx == nil || span == nil {
		t.Fatal("nil context or span")
	}

	span.SetAttr(gromozeka.IntAttr("n", 1))
	span.Event("checkpoint", gromozeka.BoolAttr("ok", true))
	span.Error(errors.New("boom"))
	span.End()
}

func TestAttrConversion(t *testing.T) {
	cases := []struct {
		in   gromozeka.SpanAttr
		want string
	}{
		{gromozeka.StringAttr("s", "x"), "STRING"},
		{gromozeka.IntAttr("i", 1), "INT64"},
		{gromozeka.Int64Attr("l", 2), "INT64"},
		{gromozeka.Float64Attr("f", 0.5), "FLOAT64"},
		{gromozeka.BoolAttr("b", true), "BOOL"},
		{gromozeka.SpanAttr{Key: "any", Value: struct{ A int }{1}}, "STRING"},
	}
	for _, c := range cases {
		got := toOTELAttr(c.in)
		if got.Value.Type().String() != c.want {
			t.Errorf("%s: type = %s, want %s", c.in.Key, got.Value.Type(), c.want)
		}
		if string(got.Key) != c.in.Key {
			t.Errorf("key = %s, want %s", got.Key, c.in.Key)
		}
	}
}
