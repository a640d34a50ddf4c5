package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventAccess EventType = "ACCESS"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
	EventLogin  EventType = "LOGIN"
)

type Event struct {
	Timestamp  time.Time       `json:"timestamp"`
	EventType  EventType       `json:"event_type"`
	UserID     int64           `json:"user_id,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Status     string          `json:"status"`
	Details    json.RawMessage `json:"details,omitempty"`
}

type Service interface {
	LogEvent(ctx context.Context, event *Event) error
	QueryEvents(ctx context.Context, filters map[string]interface{}, from, size int) ([]Event, error)
}

type service struct {
	es          *elasticsearch.Client
	indexPrefix string
	logger      *logrus.Logger
}

// NewService returns an audit trail backed by Elasticsearch. A nil client
// keeps only the logrus echo.
func NewService(es *elasticsearch.Client, indexPrefix string) Service {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	return NewServiceWithLogger(es, indexPrefix, logger)
}

func NewServiceWithLogger(es *elasticsearch.Client, indexPrefix string, logger *logrus.Logger) Service {
	if indexPrefix == "" {
		indexPrefix = "clinic_audit_"
	}
	return &service{
		es:          es,
		indexPrefix: indexPrefix,
		logger:      logger,
	}
}

func (s *service) LogEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = "success"
	}
	fillFromContext(ctx, event)

	s.logger.WithFields(logrus.Fields{
		"event_type":  event.EventType,
		"user_id":     event.UserID,
		"action":      event.Action,
		"resource":    event.Resource,
		"resource_id": event.ResourceID,
		"ip_address":  event.IPAddress,
		"request_id":  event.RequestID,
		"status":      event.Status,
	}).Info("audit event")

	if s.es == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	index := s.indexPrefix + event.Timestamp.Format("2006.01")
	res, err := s.es.Index(
		index,
		bytes.NewReader(payload),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		s.logger.WithError(err).Error("failed to index audit event")
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		err := fmt.Errorf("index audit event: %s: %s", res.Status(), body)
		s.logger.WithError(err).Error("failed to index audit event")
		return err
	}

	return nil
}

func (s *service) QueryEvents(ctx context.Context, filters map[string]interface{}, from, size int) ([]Event, error) {
	if s.es == nil {
		return []Event{}, nil
	}

	query := map[string]interface{}{
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
		"from": from,
		"size": size,
	}
	if must := buildQueryFilters(filters); len(must) > 0 {
		query["query"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		}
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.indexPrefix+"*"),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search audit events: %s", res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, err
	}

	events := make([]Event, len(result.Hits.Hits))
	for i, hit := range result.Hits.Hits {
		events[i] = hit.Source
	}
	return events, nil
}

func buildQueryFilters(filters map[string]interface{}) []map[string]interface{} {
	var must []map[string]interface{}
	for field, value := range filters {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{field: value},
		})
	}
	return must
}
