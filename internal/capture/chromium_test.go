package capture

import (
	"context"
	"testing"
	"time"
)

func TestPNGRequiresURL(t *testing.T) {
	if _, err := PNG(context.Background(), Options{}); err == nil {
		t.Fatal("PNG() without URL should fail")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{URL: "http://example.invalid"}.withDefaults()
	if o.Width != 240 || o.Height != 320 || o.Timeout != DefaultTimeout {
		t.Errorf("withDefaults() = %+v", o)
	}

	o = Options{Width: 100, Height: 50, Timeout: time.Second}.withDefaults()
	if o.Width != 100 || o.Height != 50 || o.Timeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", o)
	}
}

func TestTasksWaitSelector(t *testing.T) {
	var png []byte
	base := Options{URL: "http://example.invalid"}.withDefaults()
	if n := len(base.tasks(&png)); n != 4 {
		t.Errorf("tasks without selector = %d, want 4", n)
	}
	base.WaitSelector = `[data-ready="true"]`
	if n := len(base.tasks(&png)); n != 5 {
		t.Errorf("tasks with selector = %d, want 5", n)
	}
}
