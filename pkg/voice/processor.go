package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/teslashibe/go-guardian/pkg/emergency"
	"github.com/teslashibe/go-guardian/pkg/events"
)

// Trigger raises a manual emergency. *emergency.Dispatcher satisfies it.
type Trigger interface {
	HandleManualTrigger(ctx context.Context, source events.Source) (*emergency.Incident, error)
}

// DefaultEmergencyPhrases start an emergency when heard as whole words.
var DefaultEmergencyPhrases = []string{
	"help",
	"emergency",
	"sos",
	"call 911",
	"call the police",
	"danger",
}

// DefaultMinConfidence is the lowest cached confidence served.
const DefaultMinConfidence = 0.7

// Reply is the answer to one transcript.
type Reply struct {
	Text       string  `json:"text"`
	Emergency  bool    `json:"emergency"`
	IncidentID string  `json:"incident_id,omitempty"`
	Cached     bool    `json:"cached"`
	Confidence float64 `json:"confidence"`
}

// ProcessorConfig configures a CommandProcessor.
type ProcessorConfig struct {
	MinConfidence    float64
	EmergencyPhrases []string
	CacheSize        int
}

// DefaultProcessorConfig returns the default processor tuning.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MinConfidence:    DefaultMinConfidence,
		EmergencyPhrases: DefaultEmergencyPhrases,
		CacheSize:        DefaultMaxSize,
	}
}

// CommandProcessor routes voice transcripts.
type CommandProcessor struct {
	cfg     ProcessorConfig
	trigger Trigger
	interp  Interpreter
	cache   *ResponseCache
	phrases []string
	logger  *slog.Logger

	processed   atomic.Uint64
	emergencies atomic.Uint64
	modelCalls  atomic.Uint64
}

// NewCommandProcessor creates a processor. interp may be nil, in which case
// only cached answers and emergency phrases work. cache may be nil.
func NewCommandProcessor(cfg ProcessorConfig, trigger Trigger, interp Interpreter, cache *ResponseCache, logger *slog.Logger) *CommandProcessor {
	if cache == nil {
		cache = NewResponseCache(cfg.CacheSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	phrases := make([]string, 0, len(cfg.EmergencyPhrases))
	for _, p := range cfg.EmergencyPhrases {
		if n := Normalize(p); n != "" {
			phrases = append(phrases, n)
		}
	}
	return &CommandProcessor{
		cfg:     cfg,
		trigger: trigger,
		interp:  interp,
		cache:   cache,
		phrases: phrases,
		logger:  logger.With("component", "voice.processor"),
	}
}

// Cache exposes the response cache.
func (p *CommandProcessor) Cache() *ResponseCache {
	return p.cache
}

// Process handles one transcript.
func (p *CommandProcessor) Process(ctx context.Context, transcript string) (*Reply, error) {
	key := Normalize(transcript)
	if key == "" {
		return nil, ErrEmptyTranscript
	}
	p.processed.Add(1)

	if p.isEmergency(key) {
		p.emergencies.Add(1)
		p.logger.Warn("emergency phrase heard", "transcript", transcript)
		reply := &Reply{
			Text:       "Emergency mode activated. Help is on the way.",
			Emergency:  true,
			Confidence: 1,
		}
		if p.trigger == nil {
			return reply, nil
		}
		inc, err := p.trigger.HandleManualTrigger(ctx, events.SourceVoice)
		if err != nil {
			return nil, err
		}
		reply.IncidentID = inc.ID
		return reply, nil
	}

	if e, ok := p.cache.Lookup(key, p.cfg.MinConfidence); ok {
		p.logger.Debug("cache hit", "key", key)
		return &Reply{Text: e.Text, Cached: true, Confidence: e.Confidence}, nil
	}

	if p.interp == nil {
		return nil, ErrNoInterpreter
	}
	p.modelCalls.Add(1)
	in, err := p.interp.Interpret(ctx, transcript)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, in.Text, in.Confidence)
	return &Reply{Text: in.Text, Confidence: in.Confidence}, nil
}

func (p *CommandProcessor) isEmergency(normalized string) bool {
	padded := " " + normalized + " "
	for _, phrase := range p.phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// ProcessorStats counts processed transcripts.
type ProcessorStats struct {
	Processed   uint64     `json:"processed"`
	Emergencies uint64     `json:"emergencies"`
	ModelCalls  uint64     `json:"model_calls"`
	Cache       CacheStats `json:"cache"`
}

// Stats returns processor counters.
func (p *CommandProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Processed:   p.processed.Load(),
		Emergencies: p.emergencies.Load(),
		ModelCalls:  p.modelCalls.Load(),
		Cache:       p.cache.Stats(),
	}
}

// Normalize lowercases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'':
			// "what's" -> "whats"
		default:
			space = true
		}
	}
	return b.String()
}
