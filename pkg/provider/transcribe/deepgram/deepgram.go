// Package deepgram provides a transcription provider backed by the Deepgram
// live recognition API.
//
// Each [Provider.Transcribe] call opens one WebSocket session, streams the
// segment as linear16 PCM, asks the server to flush with a CloseStream
// message and collects the final results until the server ends the session.
// Interim results are not requested.
//
// Usage:
//
//	p, err := deepgram.New(apiKey,
//	    deepgram.WithModel("nova-3"),
//	    deepgram.WithLanguage("en"),
//	)
//	res, err := p.Transcribe(ctx, transcribe.Request{Samples: s, SampleRate: 16000, Channels: 1})
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/audio"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/pkg/provider/transcribe"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// defaultChunkBytes is 250 ms of 16 kHz mono linear16.
	defaultChunkBytes = 8000

	maxMessageBytes = 1 << 20
)

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-3", "nova-2"). Defaults to
// "nova-3".
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the language used when a request carries none.
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithEndpoint overrides the listen URL. It accepts ws, wss, http and https
// schemes.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithChunkBytes sets how many bytes of PCM are sent per WebSocket message.
func WithChunkBytes(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.chunkBytes = n
		}
	}
}

// Provider implements transcribe.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	chunkBytes int
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		chunkBytes: defaultChunkBytes,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// response is a message received from the listen endpoint.
type response struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	if err := req.Validate(); err != nil {
		return transcribe.Result{}, err
	}
	started := time.Now()

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	listenURL, err := p.listenURL(req, lang)
	if err != nil {
		return transcribe.Result{}, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, listenURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	var finals []response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.send(gctx, conn, audio.EncodePCM16(req.Samples))
	})
	g.Go(func() error {
		var err error
		finals, err = receive(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return transcribe.Result{}, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")

	res := transcribe.Result{
		SegmentID: req.SegmentID,
		SessionID: req.SessionID,
		Language:  lang,
		Provider:  "deepgram",
		Start:     req.Start,
		Duration:  req.Duration(),
		Latency:   time.Since(started),
	}
	var parts []string
	for _, r := range finals {
		if len(r.Channel.Alternatives) == 0 {
			continue
		}
		alt := r.Channel.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			parts = append(parts, t)
		}
		for _, w := range alt.Words {
			text := w.PunctuatedWord
			if text == "" {
				text = w.Word
			}
			res.Words = append(res.Words, transcribe.Word{
				Text:       text,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Confidence,
			})
		}
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}

func (p *Provider) listenURL(req transcribe.Request, lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("deepgram: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(req.SampleRate))
	q.Set("channels", strconv.Itoa(max(req.Channels, 1)))
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// send streams pcm in chunks and then asks the server to flush.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += p.chunkBytes {
		end := min(off+p.chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: write close stream: %w", err)
	}
	return nil
}

// receive collects final results until the server sends its closing
// metadata or ends the session normally.
func receive(ctx context.Context, conn *websocket.Conn) ([]response, error) {
	var finals []response
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var r response
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("deepgram: parse message: %w", err)
		}
		switch r.Type {
		case "Results":
			if r.IsFinal {
				finals = append(finals, r)
			}
		case "Metadata":
			return finals, nil
		case "Error":
			return nil, fmt.Errorf("deepgram: server error: %s", r.Description)
		}
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
