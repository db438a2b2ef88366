package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"hsmt-backend/internal/shared/storage/object"
)

const fetchConcurrency = 4

// prepareData loads every Markdown artifact in parallel. Files of the same
// source are concatenated in message order.
func (e *Extractor) prepareData(ctx context.Context, s *State) error {
	texts := make([]string, len(s.Files))
	var mu sync.Mutex
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, f := range s.Files {
		if _, ok := SourceOf(f.FileType); !ok {
			continue
		}
		g.Go(func() error {
			bucket, key := e.location(f.Bucket, f.MarkdownLink, f.FilePath)
			data, err := object.ReadAll(gctx, e.Store, bucket, key)
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s %s: %w", f.FileType, f.FileName, err))
				mu.Unlock()
				return nil
			}
			texts[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, err := range failures {
		s.addError(NodePrepare, err)
	}

	for i, f := range s.Files {
		src, ok := SourceOf(f.FileType)
		if !ok || strings.TrimSpace(texts[i]) == "" {
			continue
		}
		if prev := s.Markdown[src]; prev != "" {
			s.Markdown[src] = prev + "\n\n" + texts[i]
		} else {
			s.Markdown[src] = texts[i]
		}
	}
	if len(s.Markdown) == 0 {
		return errors.Join(append([]error{ErrNoInput}, failures...)...)
	}
	return nil
}

func (e *Extractor) location(bucket, link, path string) (string, string) {
	if strings.TrimSpace(link) == "" {
		link = path
	}
	b, key := object.SplitLink(link)
	if b == "" {
		b = bucket
	}
	if b == "" {
		b = e.DefaultBucket
	}
	return b, key
}

// classify picks each branch's input. Requirement branches prefer the
// evaluation chapter, technology prefers HSKT and the notice prefers TBMT;
// all fall back to the full HSMT.
func (e *Extractor) classify(ctx context.Context, s *State) error {
	pick := func(preferred ...Source) string {
		for _, src := range preferred {
			if s.Has(src) {
				return e.clip(s.Markdown[src])
			}
		}
		return ""
	}
	s.Inputs = Inputs{
		Summary:    pick(SourceHSMT, SourceTCDG),
		Finance:    pick(SourceTCDG, SourceHSMT),
		Experience: pick(SourceTCDG, SourceHSMT),
		HR:         pick(SourceTCDG, SourceHSMT),
		Technology: pick(SourceHSKT, SourceHSMT),
		Notice:     pick(SourceTBMT, SourceHSMT),
	}
	return nil
}

func (e *Extractor) clip(text string) string {
	if e.MaxInputRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= e.MaxInputRunes {
		return text
	}
	return string(runes[:e.MaxInputRunes])
}

type markdownData struct {
	Markdown string
}

func (e *Extractor) summary(ctx context.Context, s *State) error {
	if s.Inputs.Summary == "" {
		return nil
	}
	var out summaryOutput
	if err := e.LLM.CompleteJSON(ctx, "summary_hsmt", markdownData{s.Inputs.Summary}, &out); err != nil {
		return err
	}
	s.Summary = strings.TrimSpace(out.SummaryMarkdown)
	s.Overview = out.Overview
	return nil
}

func (e *Extractor) extractFinance(ctx context.Context, s *State) error {
	if s.Inputs.Finance == "" {
		return nil
	}
	var out requirementsOutput
	if err := e.LLM.CompleteJSON(ctx, "extract_finance", markdownData{s.Inputs.Finance}, &out); err != nil {
		return err
	}
	s.Finance = out.Requirements
	return nil
}

func (e *Extractor) extractExperience(ctx context.Context, s *State) error {
	if s.Inputs.Experience == "" {
		return nil
	}
	var out requirementsOutput
	if err := e.LLM.CompleteJSON(ctx, "extract_experience", markdownData{s.Inputs.Experience}, &out); err != nil {
		return err
	}
	s.Experience = out.Requirements
	return nil
}

func (e *Extractor) extractHR(ctx context.Context, s *State) error {
	if s.Inputs.HR == "" {
		return nil
	}
	var out hrOutput
	if err := e.LLM.CompleteJSON(ctx, "extract_hr", markdownData{s.Inputs.HR}, &out); err != nil {
		return err
	}
	s.HR = out.Positions
	return nil
}

func (e *Extractor) extractTechnology(ctx context.Context, s *State) error {
	if s.Inputs.Technology == "" {
		return nil
	}
	var out technologyOutput
	if err := e.LLM.CompleteJSON(ctx, "extract_technology", markdownData{s.Inputs.Technology}, &out); err != nil {
		return err
	}
	raw, err := json.Marshal(out.Items)
	if err != nil {
		return err
	}
	s.Technology = out.Items
	s.TechRaw = raw
	s.TechHR = out.Positions
	return nil
}

func (e *Extractor) extractNotice(ctx context.Context, s *State) error {
	if s.Inputs.Notice == "" {
		return nil
	}
	var out Notice
	if err := e.LLM.CompleteJSON(ctx, "extract_notice", markdownData{s.Inputs.Notice}, &out); err != nil {
		return err
	}
	s.Notice = out
	return nil
}
