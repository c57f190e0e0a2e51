// Package tagedit builds bulk edits applied to every channel under a tag.
package tagedit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoChanges  = errors.New("no changes")
	ErrTagMissing = errors.New("tagedit: tag is required")
)

// Upstream is the part of the gateway admin API a tag edit uses.
type Upstream interface {
	TagModels(ctx context.Context, tag string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	ListGroups(ctx context.Context) ([]string, error)
	UpdateTag(ctx context.Context, body map[string]any) error
}

// Auditor records successful tag edits.
type Auditor interface {
	Record(ctx context.Context, change *models.ChannelChange) error
}

// Form is a tag edit. Empty groups, models and model mapping are left
// unchanged upstream. A nil NewTag keeps the tag; an empty one dissolves it.
type Form struct {
	Tag          string   `json:"tag"`
	NewTag       *string  `json:"new_tag"`
	ModelMapping string   `json:"model_mapping"`
	Groups       []string `json:"groups"`
	Models       []string `json:"models"`
}

// Loaded is the starting state of a tag edit.
type Loaded struct {
	Form     Form     `json:"form"`
	Models   []string `json:"model_options"`
	Groups   []string `json:"group_options"`
	Warnings []string `json:"warnings,omitempty"`
}

// Service opens and submits tag edits.
type Service struct {
	upstream Upstream
	audit    Auditor
}

// NewService constructs a Service. audit may be nil.
func NewService(upstream Upstream, audit Auditor) *Service {
	return &Service{upstream: upstream, audit: audit}
}

// Open loads the models of the tag (the longest model list among its
// channels) and the option lists. NewTag starts equal to the tag.
func (s *Service) Open(ctx context.Context, tag string) (Loaded, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Loaded{}, ErrTagMissing
	}

	var (
		out    Loaded
		warnMu sync.Mutex
	)
	warn := func(what string, err error) {
		log.WithError(err).WithField("tag", tag).Warnf("tagedit: load %s", what)
		warnMu.Lock()
		out.Warnings = append(out.Warnings, fmt.Sprintf("failed to load %s: %v", what, err))
		warnMu.Unlock()
	}

	var tagModels string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.upstream.TagModels(gctx, tag)
		if err != nil {
			return err
		}
		tagModels = raw
		return nil
	})
	g.Go(func() error {
		list, err := s.upstream.ListModels(gctx)
		if err != nil {
			warn("models", err)
			return nil
		}
		out.Models = channel.NormalizeList(list)
		return nil
	})
	g.Go(func() error {
		list, err := s.upstream.ListGroups(gctx)
		if err != nil {
			warn("groups", err)
			return nil
		}
		out.Groups = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return Loaded{}, err
	}

	newTag := tag
	out.Form = Form{
		Tag:    tag,
		NewTag: &newTag,
		Groups: []string{},
		Models: channel.SplitList(tagModels),
	}
	out.Models = mergeOptions(out.Models, out.Form.Models)
	return out, nil
}

// mergeOptions appends selected models missing from the option list.
func mergeOptions(options, selected []string) []string {
	return channel.NormalizeList(append(append([]string{}, options...), selected...))
}

// AddCustomModels appends the comma-separated names in input that are not
// already present and reports which were added.
func AddCustomModels(current []string, input string) (list []string, added []string) {
	list = append([]string{}, current...)
	seen := make(map[string]struct{}, len(current))
	for _, m := range current {
		seen[m] = struct{}{}
	}
	for _, m := range strings.Split(input, ",") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		list = append(list, m)
		added = append(added, m)
	}
	return list, added
}

// Build turns a form into the PUT /api/channel/tag body.
func Build(form Form) (map[string]any, error) {
	tag := strings.TrimSpace(form.Tag)
	if tag == "" {
		return nil, ErrTagMissing
	}
	body := map[string]any{"tag": tag}
	changed := false
	if mapping := strings.TrimSpace(form.ModelMapping); mapping != "" {
		if !gjson.Valid(mapping) {
			return nil, &channel.ValidationError{Field: channel.FieldModelMapping, Message: "model mapping must be valid JSON"}
		}
		body["model_mapping"] = form.ModelMapping
		changed = true
	}
	if groups := channel.NormalizeList(form.Groups); len(groups) > 0 {
		body["groups"] = strings.Join(groups, ",")
		changed = true
	}
	if list := channel.NormalizeList(form.Models); len(list) > 0 {
		body["models"] = strings.Join(list, ",")
		changed = true
	}
	if form.NewTag != nil {
		body["new_tag"] = strings.TrimSpace(*form.NewTag)
		changed = true
	}
	if !changed {
		return nil, ErrNoChanges
	}
	return body, nil
}

// Submit builds and sends the tag edit.
func (s *Service) Submit(ctx context.Context, adminID uint64, form Form) error {
	body, err := Build(form)
	if err != nil {
		return err
	}
	if err = s.upstream.UpdateTag(ctx, body); err != nil {
		return err
	}
	s.record(ctx, adminID, body)
	return nil
}

func (s *Service) record(ctx context.Context, adminID uint64, body map[string]any) {
	if s.audit == nil {
		return
	}
	summary := make(map[string]any, len(body))
	for k, v := range body {
		if k == "model_mapping" {
			continue
		}
		summary[k] = v
	}
	if _, ok := body["model_mapping"]; ok {
		summary["model_mapping_changed"] = true
	}
	payload, errEncode := models.EncodeChangeSummary(summary)
	if errEncode != nil {
		log.WithError(errEncode).Warn("tagedit: marshal audit summary")
	}
	change := &models.ChannelChange{
		AdminID: adminID,
		Action:  models.ChannelActionTagUpdate,
		Tag:     fmt.Sprint(body["tag"]),
		Summary: payload,
	}
	if errRecord := s.audit.Record(context.WithoutCancel(ctx), change); errRecord != nil {
		log.WithError(errRecord).Warn("tagedit: record tag update")
	}
}
