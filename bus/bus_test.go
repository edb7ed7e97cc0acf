package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(RunPageTask{Prompt: "add the blue mug to the cart"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.ID == "" {
		t.Error("envelope ID is empty")
	}
	if env.Kind != KindRunPageTask {
		t.Errorf("Kind = %q, want %q", env.Kind, KindRunPageTask)
	}

	msg, err := Decode[RunPageTask](env.Body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Prompt != "add the blue mug to the cart" {
		t.Errorf("Prompt = %q", msg.Prompt)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode[SetLanguage](json.RawMessage(`{"language":`)); err == nil {
		t.Error("want error for malformed body")
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	msg, err := Decode[RunAudit](nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg != (RunAudit{}) {
		t.Errorf("got %+v, want zero value", msg)
	}
}

func TestDispatch_RoutesByKind(t *testing.T) {
	d := New()
	var gotLang string
	d.Register(KindSetLanguage, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		msg, err := Decode[SetLanguage](body)
		if err != nil {
			return nil, err
		}
		gotLang = msg.Language
		return []byte(`{"ok":true}`), nil
	})
	d.Register(KindRunAudit, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		t.Error("audit handler should not run")
		return nil, nil
	})

	resp, err := d.Publish(context.Background(), SetLanguage{Language: "fr"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotLang != "fr" {
		t.Errorf("handler saw language %q, want %q", gotLang, "fr")
	}
	if string(resp) != `{"ok":true}` {
		t.Errorf("response = %s", resp)
	}
}

func TestDispatch_NoHandler(t *testing.T) {
	d := New()
	_, err := d.Publish(context.Background(), AnalyzePage{})
	var noHandler *ErrNoHandler
	if !errors.As(err, &noHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
	if noHandler.Kind != KindAnalyzePage {
		t.Errorf("Kind = %q, want %q", noHandler.Kind, KindAnalyzePage)
	}
}

func TestDispatch_DropsDuplicates(t *testing.T) {
	d := New()
	calls := 0
	d.Register(KindAnalyzePage, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		calls++
		return []byte(`"done"`), nil
	})

	env, err := NewEnvelope(AnalyzePage{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	resp, err := d.Dispatch(context.Background(), env)
	if err != nil || string(resp) != `"done"` {
		t.Fatalf("first dispatch: resp=%s err=%v", resp, err)
	}
	resp, err = d.Dispatch(context.Background(), env)
	if err != nil {
		t.Fatalf("replay dispatch: %v", err)
	}
	if resp != nil {
		t.Errorf("replay response = %s, want none", resp)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestDispatch_EmptyIDNeverDeduped(t *testing.T) {
	d := New()
	calls := 0
	d.Register(KindRunAudit, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		calls++
		return nil, nil
	})

	env := Envelope{Kind: KindRunAudit}
	for i := 0; i < 3; i++ {
		if _, err := d.Dispatch(context.Background(), env); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Errorf("handler ran %d times, want 3", calls)
	}
}

func TestPublish_FreshIDPerMessage(t *testing.T) {
	d := New()
	calls := 0
	d.Register(KindDescribeImages, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		calls++
		return nil, nil
	})

	for i := 0; i < 2; i++ {
		if _, err := d.Publish(context.Background(), DescribeImages{}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2", calls)
	}
}

func TestKinds_Sorted(t *testing.T) {
	d := New()
	noop := func(ctx context.Context, body json.RawMessage) ([]byte, error) { return nil, nil }
	d.Register(KindSetLanguage, noop)
	d.Register(KindAnalyzePage, noop)
	d.Register(KindRunAudit, noop)

	got := d.Kinds()
	want := []Kind{KindAnalyzePage, KindRunAudit, KindSetLanguage}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
