// Package voice handles the audio capture flow: exclusive device
// acquisition, buffering, and transcription through the reply service.
package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/amglabs/companion/replyclient"
)

// Device opens an audio capture stream. Open fails immediately when
// permission is denied; the returned stream must be closed to release the
// device.
type Device interface {
	Open() (io.ReadCloser, error)
}

// Recorder drives one capture session at a time. The device is exclusively
// held between Start and Stop and always released on Stop or Teardown,
// whichever comes first.
type Recorder struct {
	device Device
	client *replyclient.Client

	mu     sync.Mutex
	stream io.ReadCloser
	buf    bytes.Buffer
	done   chan struct{}
}

// NewRecorder creates a recorder over the given capture device.
func NewRecorder(device Device, client *replyclient.Client) *Recorder {
	return &Recorder{device: device, client: client}
}

// Start acquires the device and begins buffering audio. A second Start
// while recording is an error. Permission failure aborts the flow with no
// partial state retained.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		return fmt.Errorf("recording already in progress")
	}

	stream, err := r.device.Open()
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	r.stream = stream
	r.buf.Reset()
	r.done = make(chan struct{})

	go func(stream io.ReadCloser, done chan struct{}) {
		defer close(done)
		// Read until the stream is closed by Stop or Teardown.
		io.Copy(&r.buf, stream)
	}(stream, r.done)

	return nil
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Stop releases the device and transcribes the captured audio.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	if stream == nil {
		return "", fmt.Errorf("no recording in progress")
	}

	stream.Close()
	<-done

	// The slot is cleared only after the copy goroutine has drained, so a
	// concurrent Start cannot begin writing the buffer mid-flush.
	r.mu.Lock()
	if r.stream != stream {
		r.mu.Unlock()
		return "", fmt.Errorf("no recording in progress")
	}
	r.stream = nil
	audio := make([]byte, r.buf.Len())
	copy(audio, r.buf.Bytes())
	r.buf.Reset()
	r.mu.Unlock()

	if len(audio) == 0 {
		return "", fmt.Errorf("no audio captured")
	}

	resp, err := r.client.Transcribe(ctx, "voice.webm", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to transcribe recording: %w", err)
	}
	return resp.Text, nil
}

// Teardown releases the device without transcribing. Safe to call whether
// or not a recording is active.
func (r *Recorder) Teardown() {
	r.mu.Lock()
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	if stream == nil {
		return
	}

	stream.Close()
	<-done

	r.mu.Lock()
	if r.stream == stream {
		r.stream = nil
		r.buf.Reset()
	}
	r.mu.Unlock()
}
