package output

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar_NonTTYPrintsOnlyFinalLine(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(2048, "Downloading acme/widget")
	p.SetWriter(buf)

	p.Write(make([]byte, 1024))
	p.Write(make([]byte, 1024))
	if buf.Len() != 0 {
		t.Errorf("non-TTY writer should see nothing before Finish, got %q", buf.String())
	}

	p.Finish()
	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", output)
	}
	for _, want := range []string{"100%", "2 KB/2 KB", "Downloading acme/widget"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
}

func TestProgressBar_Partial(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(100, "Uploading")
	p.SetWriter(buf)
	p.SetWidth(10)

	p.Write(make([]byte, 50))
	p.mu.Lock()
	p.render(true)
	p.mu.Unlock()

	output := buf.String()
	if !strings.Contains(output, " 50%") {
		t.Errorf("should show 50%%, got %q", output)
	}
	if !strings.Contains(output, "[====>     ]") {
		t.Errorf("unexpected bar shape: %q", output)
	}
}

func TestProgressBar_OverLimitClamps(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(10, "Overflow")
	p.SetWriter(buf)

	n, err := p.Write(make([]byte, 25))
	if err != nil || n != 25 {
		t.Fatalf("Write() = %d, %v; want 25, nil", n, err)
	}
	p.Finish()

	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("should clamp to 100%%, got %q", buf.String())
	}
}

func TestProgressBar_UnknownTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(-1, "Downloading acme/widget")
	p.SetWriter(buf)

	p.Write(make([]byte, 3*1024*1024))
	p.Finish()

	output := buf.String()
	if strings.Contains(output, "%") || strings.Contains(output, "[") {
		t.Errorf("unknown total should not draw a bar, got %q", output)
	}
	if !strings.Contains(output, "3 MB Downloading acme/widget") {
		t.Errorf("unexpected output %q", output)
	}
}

func TestProgressBar_AsTeeTarget(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgress(11, "Copying")
	p.SetWriter(buf)

	var dst bytes.Buffer
	if _, err := io.Copy(&dst, io.TeeReader(strings.NewReader("hello world"), p)); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	p.Finish()

	if dst.String() != "hello world" {
		t.Errorf("tee altered data: %q", dst.String())
	}
	if !strings.Contains(buf.String(), "11 B/11 B") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	p := NewProgress(1000, "Concurrent")
	p.SetWriter(io.Discard)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				p.Write(make([]byte, 10))
			}
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != 1000 {
		t.Errorf("current = %d, want 1000", p.current)
	}
}

func TestSpinner_NonTTYPrintsOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSpinner("Resolving acme/widget")
	s.SetWriter(buf)

	s.Start()
	s.Start()
	s.Stop()

	if got := buf.String(); got != "Resolving acme/widget...\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSpinner_MultipleStops(t *testing.T) {
	s := NewSpinner("Test")
	s.SetWriter(io.Discard)

	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	s := NewSpinner("Never started")
	s.SetWriter(io.Discard)
	s.Stop()
}

func TestSpinner_UpdateMessage(t *testing.T) {
	s := NewSpinner("Initial")
	s.SetWriter(io.Discard)
	s.Start()
	defer s.Stop()

	s.UpdateMessage("Updated")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message != "Updated" {
		t.Errorf("message = %q, want Updated", s.message)
	}
}
