package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"instaflow/internal/domain"
)

type stubStore struct {
	accounts     []domain.IGAccount
	automations  map[string][]domain.Automation
	activeRules  []domain.Automation
	backfills    []string
	statsUpdates map[string]domain.AutomationStats
	activity     []domain.ActivityEntry
}

func newStubStore() *stubStore {
	return &stubStore{
		automations:  map[string][]domain.Automation{},
		statsUpdates: map[string]domain.AutomationStats{},
	}
}

func (s *stubStore) GetAccountByBusinessID(_ context.Context, businessID string) (domain.IGAccount, error) {
	for _, acc := range s.accounts {
		if acc.BusinessID != "" && acc.BusinessID == businessID {
			return acc, nil
		}
	}
	return domain.IGAccount{}, domain.ErrNotFound
}

func (s *stubStore) GetAccountByIGUserID(_ context.Context, igUserID string) (domain.IGAccount, error) {
	for _, acc := range s.accounts {
		if acc.IGUserID == igUserID {
			return acc, nil
		}
	}
	return domain.IGAccount{}, domain.ErrNotFound
}

func (s *stubStore) GetAccountByID(_ context.Context, id string) (domain.IGAccount, error) {
	for _, acc := range s.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return domain.IGAccount{}, domain.ErrNotFound
}

func (s *stubStore) UpdateAccountBusinessID(_ context.Context, id, businessID string) error {
	s.backfills = append(s.backfills, id)
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			s.accounts[i].BusinessID = businessID
		}
	}
	return nil
}

func (s *stubStore) DeleteAccountCascade(context.Context, string) error { return nil }

func (s *stubStore) ListAccountAutomations(_ context.Context, igAccountID string) ([]domain.Automation, error) {
	return s.automations[igAccountID], nil
}

func (s *stubStore) ListActiveAutomationsByKind(_ context.Context, kind string) ([]domain.Automation, error) {
	var out []domain.Automation
	for _, a := range s.activeRules {
		if a.IsActive && a.Kind == kind {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStore) GetAutomation(context.Context, string) (domain.Automation, error) {
	return domain.Automation{}, domain.ErrNotFound
}

func (s *stubStore) CreateAutomation(_ context.Context, a domain.Automation) (domain.Automation, error) {
	return a, nil
}

func (s *stubStore) UpdateAutomation(context.Context, domain.Automation) error { return nil }

func (s *stubStore) UpdateAutomationStats(_ context.Context, id string, stats domain.AutomationStats) error {
	s.statsUpdates[id] = stats
	return nil
}

func (s *stubStore) DeleteAutomation(context.Context, string) error { return nil }

func (s *stubStore) ListUserAutomations(context.Context, string) ([]domain.Automation, error) {
	return nil, nil
}

func (s *stubStore) AppendActivity(_ context.Context, entry domain.ActivityEntry) error {
	s.activity = append(s.activity, entry)
	return nil
}

func (s *stubStore) ListActivity(context.Context, string, int) ([]domain.ActivityEntry, error) {
	return nil, nil
}

type stubSender struct {
	privateReplies []string
	directMessages []string
	failOnText     map[string]error
}

func (s *stubSender) SendPrivateReply(_ context.Context, _, _, _, text string) error {
	if err := s.failOnText[text]; err != nil {
		return err
	}
	s.privateReplies = append(s.privateReplies, text)
	return nil
}

func (s *stubSender) SendDirectMessage(_ context.Context, _, _, text string) error {
	if err := s.failOnText[text]; err != nil {
		return err
	}
	s.directMessages = append(s.directMessages, text)
	return nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) GenerateReply(context.Context, string, string) (string, error) {
	return g.reply, g.err
}

type stubCache struct {
	seen map[string]bool
}

func (c *stubCache) Once(key string, _ time.Duration, fn func() error) error {
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[key] {
		return nil
	}
	c.seen[key] = true
	return fn()
}

func (c *stubCache) Set(string, []byte, time.Duration) error { return nil }
func (c *stubCache) Get(string) ([]byte, error)              { return nil, nil }

func newTestService(store *stubStore, sender *stubSender, gen *stubGenerator, cache domain.Cache) *Service {
	logger := zerolog.Nop()
	resolver := NewResolver(store, store, logger)
	if gen == nil {
		gen = &stubGenerator{reply: "автоответ"}
	}
	dispatcher := NewDispatcher(sender, gen, logger)
	recorder := NewRecorder(store, store, logger)
	return NewService(resolver, dispatcher, recorder, store, cache, time.Minute, "secret", logger)
}

func commentEnvelope(igUserID, commentID, text, mediaID string) domain.WebhookEnvelope {
	value, _ := json.Marshal(map[string]any{
		"id":    commentID,
		"text":  text,
		"from":  map[string]string{"id": "author-1", "username": "commenter"},
		"media": map[string]string{"id": mediaID},
	})
	return domain.WebhookEnvelope{
		Object: ObjectInstagram,
		Entry: []domain.WebhookEntry{{
			ID:      igUserID,
			Changes: []domain.WebhookChange{{Field: domain.ChangeFieldComments, Value: value}},
		}},
	}
}

func TestHandleVerification(t *testing.T) {
	service := newTestService(newStubStore(), &stubSender{}, nil, nil)

	challenge, ok := service.HandleVerification("subscribe", "secret", "12345")
	if !ok || challenge != "12345" {
		t.Fatalf("ожидали эхо challenge при верном токене")
	}

	if _, ok := service.HandleVerification("subscribe", "wrong", "12345"); ok {
		t.Fatal("неверный токен не должен проходить верификацию")
	}
	if _, ok := service.HandleVerification("unsubscribe", "secret", "12345"); ok {
		t.Fatal("чужой mode не должен проходить верификацию")
	}
}

func TestProcessDeliveryFiresCommentRule(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", IGUserID: "ig-1", BusinessID: "biz-1", Username: "shop", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{{
		ID:       "a1",
		UserID:   "user-1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "лови гайд"},
	}}
	sender := &stubSender{}
	service := newTestService(store, sender, nil, nil)

	summary := service.ProcessDelivery(context.Background(), commentEnvelope("biz-1", "c1", "send me the GUIDE", "m1"))

	if summary.TotalFired() != 1 {
		t.Fatalf("ожидали 1 срабатывание, получили %d", summary.TotalFired())
	}
	if len(sender.privateReplies) != 1 || sender.privateReplies[0] != "лови гайд" {
		t.Fatalf("ожидали отправку шаблона, получили %v", sender.privateReplies)
	}
	stats, ok := store.statsUpdates["a1"]
	if !ok || stats.TotalReplies != 1 || stats.LastTriggered == nil {
		t.Fatalf("ожидали обновление статистики правила: %+v", stats)
	}
	if len(store.activity) != 1 || store.activity[0].Action != domain.ActionCommentDMSent {
		t.Fatalf("ожидали запись журнала comment_dm_sent")
	}
	if store.activity[0].TargetUsername != "commenter" {
		t.Fatalf("ожидали автора комментария в журнале, получили %q", store.activity[0].TargetUsername)
	}
}

func TestProcessDeliveryPartialFailureIsolation(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", BusinessID: "biz-1", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{
		{ID: "a-fail", Kind: domain.KindCommentToDM, IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "падающий шаблон"}},
		{ID: "a-ok", Kind: domain.KindCommentToDM, IsActive: true, Config: domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "рабочий шаблон"}},
	}
	sender := &stubSender{failOnText: map[string]error{"падающий шаблон": errors.New("send failed")}}
	service := newTestService(store, sender, nil, nil)

	summary := service.ProcessDelivery(context.Background(), commentEnvelope("biz-1", "c1", "guide", "m1"))

	if summary.TotalFired() != 1 {
		t.Fatalf("ожидали 1 успешную отправку, получили %d", summary.TotalFired())
	}
	if _, ok := store.statsUpdates["a-fail"]; ok {
		t.Fatal("статистика упавшего правила не должна обновляться")
	}
	if stats, ok := store.statsUpdates["a-ok"]; !ok || stats.TotalReplies != 1 {
		t.Fatalf("статистика успешного правила должна обновиться: %+v", stats)
	}
	if len(store.activity) != 1 {
		t.Fatalf("журнал должен содержать только успешную отправку, записей: %d", len(store.activity))
	}
}

func TestProcessDeliveryAcknowledgesMalformedItems(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", BusinessID: "biz-1", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "гайд"},
	}}
	sender := &stubSender{}
	service := newTestService(store, sender, nil, nil)

	good, _ := json.Marshal(map[string]any{"id": "c1", "text": "guide"})
	env := domain.WebhookEnvelope{
		Object: ObjectInstagram,
		Entry: []domain.WebhookEntry{{
			ID: "biz-1",
			Changes: []domain.WebhookChange{
				{Field: domain.ChangeFieldComments, Value: json.RawMessage(`{"text": 42}`)},
				{Field: domain.ChangeFieldComments, Value: good},
			},
		}},
	}

	summary := service.ProcessDelivery(context.Background(), env)

	if len(summary.Items) != 2 {
		t.Fatalf("ожидали 2 результата, получили %d", len(summary.Items))
	}
	if summary.Items[0].Outcome != OutcomeMalformed {
		t.Fatalf("ожидали malformed для битого события, получили %s", summary.Items[0].Outcome)
	}
	if summary.Items[1].Fired != 1 {
		t.Fatalf("корректное событие должно сработать ровно один раз")
	}
	if len(sender.privateReplies) != 1 {
		t.Fatalf("ожидали одну отправку, получили %d", len(sender.privateReplies))
	}
}

func TestProcessDeliveryDeduplicatesComments(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", BusinessID: "biz-1", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "гайд"},
	}}
	sender := &stubSender{}
	service := newTestService(store, sender, nil, &stubCache{})

	env := commentEnvelope("biz-1", "c1", "guide", "m1")
	first := service.ProcessDelivery(context.Background(), env)
	second := service.ProcessDelivery(context.Background(), env)

	if first.TotalFired() != 1 {
		t.Fatalf("первая доставка должна сработать")
	}
	if second.TotalFired() != 0 || second.Items[0].Outcome != OutcomeDuplicate {
		t.Fatalf("повторная доставка должна быть пропущена: %+v", second.Items)
	}
	if len(sender.privateReplies) != 1 {
		t.Fatalf("повтор не должен отправлять сообщение ещё раз")
	}
}

func TestProcessDeliveryMessageMatchAll(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", IGUserID: "ig-1", BusinessID: "biz-1", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{{
		ID:       "dm-1",
		Kind:     domain.KindAutoDMReply,
		IsActive: true,
	}}
	sender := &stubSender{}
	service := newTestService(store, sender, &stubGenerator{reply: "спасибо!"}, nil)

	env := domain.WebhookEnvelope{
		Object: ObjectInstagram,
		Entry:  []domain.WebhookEntry{{ID: "biz-1"}},
	}
	env.Entry[0].Messaging = []domain.WebhookMessaging{{}}
	env.Entry[0].Messaging[0].Sender.ID = "sender-7"
	env.Entry[0].Messaging[0].Message.Text = "привет, расскажите про курс"

	summary := service.ProcessDelivery(context.Background(), env)

	if summary.TotalFired() != 1 {
		t.Fatalf("правило без триггеров должно ответить на сообщение")
	}
	if len(sender.directMessages) != 1 || sender.directMessages[0] != "спасибо!" {
		t.Fatalf("ожидали отправку сгенерированного ответа, получили %v", sender.directMessages)
	}
	if len(store.activity) != 1 || store.activity[0].Action != domain.ActionDMAutoReply {
		t.Fatalf("ожидали запись журнала dm_auto_reply")
	}
}

func TestProcessDeliveryGenerationFailureSkipsRule(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", IGUserID: "ig-1", BusinessID: "biz-1", AccessToken: "token"}}
	store.automations["acc-1"] = []domain.Automation{{ID: "dm-1", Kind: domain.KindAutoDMReply, IsActive: true}}
	sender := &stubSender{}
	service := newTestService(store, sender, &stubGenerator{err: errors.New("llm unavailable")}, nil)

	env := domain.WebhookEnvelope{Object: ObjectInstagram, Entry: []domain.WebhookEntry{{ID: "biz-1"}}}
	env.Entry[0].Messaging = []domain.WebhookMessaging{{}}
	env.Entry[0].Messaging[0].Sender.ID = "sender-7"
	env.Entry[0].Messaging[0].Message.Text = "привет"

	summary := service.ProcessDelivery(context.Background(), env)

	if summary.TotalFired() != 0 {
		t.Fatal("при ошибке генерации отправки быть не должно")
	}
	if len(sender.directMessages) != 0 {
		t.Fatal("пустой или несгенерированный ответ не должен отправляться")
	}
	if len(store.statsUpdates) != 0 || len(store.activity) != 0 {
		t.Fatal("неуспешное срабатывание не должно менять статистику и журнал")
	}
}

func TestProcessDeliveryMissingTokenIsPerRuleError(t *testing.T) {
	store := newStubStore()
	store.accounts = []domain.IGAccount{{ID: "acc-1", UserID: "user-1", BusinessID: "biz-1"}}
	store.automations["acc-1"] = []domain.Automation{{
		ID:       "a1",
		Kind:     domain.KindCommentToDM,
		IsActive: true,
		Config:   domain.AutomationConfig{Keywords: []string{"guide"}, MessageTemplate: "гайд"},
	}}
	sender := &stubSender{}
	service := newTestService(store, sender, nil, nil)

	summary := service.ProcessDelivery(context.Background(), commentEnvelope("biz-1", "c1", "guide", "m1"))

	if summary.TotalFired() != 0 {
		t.Fatal("без access token отправки быть не должно")
	}
	if len(store.statsUpdates) != 0 {
		t.Fatal("статистика не должна обновляться при ошибке конфигурации")
	}
}

func TestProcessDeliveryUnknownObjectSkipped(t *testing.T) {
	service := newTestService(newStubStore(), &stubSender{}, nil, nil)

	summary := service.ProcessDelivery(context.Background(), domain.WebhookEnvelope{Object: "page"})
	if len(summary.Items) != 0 {
		t.Fatalf("чужой объект доставки не должен порождать события")
	}
}
