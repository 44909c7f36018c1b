package businessflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the database with the same conditional-write semantics
type memStore struct {
	mu          sync.Mutex
	nextID      uint
	tenants     map[uint]*models.Tenant
	recipients  map[uint]*models.Recipient
	automations map[uint]*models.Automation
	records     map[uint]*models.SendRecord
	failures    map[uint][]*models.FailureDetail

	finalizeCalls int
	writes        int
	failFinalize  error
}

func newMemStore() *memStore {
	return &memStore{
		tenants:     make(map[uint]*models.Tenant),
		recipients:  make(map[uint]*models.Recipient),
		automations: make(map[uint]*models.Automation),
		records:     make(map[uint]*models.SendRecord),
		failures:    make(map[uint][]*models.FailureDetail),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func cloneAutomation(a *models.Automation) *models.Automation {
	c := *a
	c.SendRecordIDs = append([]int64{}, a.SendRecordIDs...)
	if a.IsActive != nil {
		c.IsActive = utils.ToPtr(*a.IsActive)
	}
	if a.AudienceSize != nil {
		c.AudienceSize = utils.ToPtr(*a.AudienceSize)
	}
	return &c
}

func cloneRecord(r *models.SendRecord) *models.SendRecord {
	c := *r
	return &c
}

// fixtures

func (s *memStore) addTenant(name, accountRef string) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Tenant{ID: s.id(), UUID: uuid.New(), Name: name, ProviderAccountRef: accountRef, TimeZone: "UTC"}
	s.tenants[t.ID] = t
	return t
}

func (s *memStore) addRecipient(tenantID uint, name string, attendance *bool) *models.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	r := &models.Recipient{ID: id, TenantID: tenantID, Name: name, Address: fmt.Sprintf("+1555000%04d", id), Attendance: attendance}
	s.recipients[r.ID] = r
	return r
}

func (s *memStore) addAutomation(tenantID uint, scheduledAt time.Time, filter models.TargetAudienceFilter) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Automation{
		ID:             s.id(),
		UUID:           uuid.New(),
		TenantID:       tenantID,
		Name:           "rsvp",
		IsActive:       utils.ToPtr(true),
		Status:         models.AutomationStatusPending,
		Type:           models.AutomationTypeRSVP,
		ScheduledAt:    scheduledAt,
		TimeZone:       "UTC",
		TemplateRef:    "HXrsvp",
		Variables:      models.TemplateVariables{"couple": "Ana & Ben"},
		AudienceFilter: filter,
		SendRecordIDs:  []int64{},
	}
	s.automations[a.ID] = a
	return cloneAutomation(a)
}

func (s *memStore) automation(id uint) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAutomation(s.automations[id])
}

func (s *memStore) recordsOf(automationID uint) []*models.SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SendRecord, 0)
	for _, r := range s.records {
		if r.AutomationID != nil && *r.AutomationID == automationID {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) failuresOf(automationID uint) []*models.FailureDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.FailureDetail{}, s.failures[automationID]...)
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// tenants

type memTenantRepo struct{ s *memStore }

func (r memTenantRepo) ByID(ctx context.Context, id uint) (*models.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r memTenantRepo) Save(ctx context.Context, tenant *models.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tenant.ID = r.s.id()
	c := *tenant
	r.s.tenants[c.ID] = &c
	return nil
}

func (r memTenantRepo) ListIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uint, 0)
	for id := range r.s.tenants {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r memTenantRepo) ByProviderAccountRef(ctx context.Context, accountRef string) (*models.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.Tenant
	for _, t := range r.s.tenants {
		if t.ProviderAccountRef == accountRef && (found == nil || t.ID < found.ID) {
			found = t
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

// recipients

type memRecipientRepo struct{ s *memStore }

func (r memRecipientRepo) ByID(ctx context.Context, id uint) (*models.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.recipients[id]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (r memRecipientRepo) Save(ctx context.Context, recipient *models.Recipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	recipient.ID = r.s.id()
	c := *recipient
	r.s.recipients[c.ID] = &c
	return nil
}

func (r memRecipientRepo) SaveBatch(ctx context.Context, recipients []*models.Recipient) error {
	for _, rec := range recipients {
		if err := r.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r memRecipientRepo) ListByTenant(ctx context.Context, tenantID uint) ([]*models.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Recipient, 0)
	for _, rec := range r.s.recipients {
		if rec.TenantID == tenantID {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// automations

type memAutomationRepo struct{ s *memStore }

func (r memAutomationRepo) ByID(ctx context.Context, id uint) (*models.Automation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.automations[id]
	if !ok {
		return nil, nil
	}
	return cloneAutomation(a), nil
}

func (r memAutomationRepo) ByFilter(ctx context.Context, filter models.AutomationFilter, orderBy string, limit, offset int) ([]*models.Automation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Automation, 0)
	for _, a := range r.s.automations {
		if filter.TenantID != nil && a.TenantID != *filter.TenantID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, cloneAutomation(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAutomationRepo) Save(ctx context.Context, a *models.Automation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	a.CreatedAt = time.Now().UTC()
	r.s.automations[a.ID] = cloneAutomation(a)
	return nil
}

func (r memAutomationRepo) SaveBatch(ctx context.Context, rows []*models.Automation) error {
	for _, a := range rows {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r memAutomationRepo) Count(ctx context.Context, filter models.AutomationFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r memAutomationRepo) Exists(ctx context.Context, filter models.AutomationFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r memAutomationRepo) ClaimForDispatch(ctx context.Context, id uint, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.automations[id]
	if !ok || !a.DueAt(now) {
		return false, nil
	}
	a.Status = models.AutomationStatusInProgress
	a.StartedAt = utils.ToPtr(now)
	r.s.writes++
	return true, nil
}

func (r memAutomationRepo) ClaimResume(ctx context.Context, id uint, staleBefore, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.automations[id]
	if !ok || a.Status != models.AutomationStatusInProgress || a.IsFinalized() ||
		a.StartedAt == nil || !a.StartedAt.Before(staleBefore) {
		return false, nil
	}
	a.StartedAt = utils.ToPtr(now)
	r.s.writes++
	return true, nil
}

func (r memAutomationRepo) SetAudienceSize(ctx context.Context, id uint, size int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.automations[id]; ok && a.AudienceSize == nil {
		a.AudienceSize = utils.ToPtr(size)
		r.s.writes++
	}
	return nil
}

func (r memAutomationRepo) AppendSendRecordID(ctx context.Context, id uint, sendRecordID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.automations[id]
	if !ok || a.HasSendRecord(sendRecordID) {
		return nil
	}
	a.SendRecordIDs = append(a.SendRecordIDs, int64(sendRecordID))
	r.s.writes++
	return nil
}

func (r memAutomationRepo) Finalize(ctx context.Context, id uint, status models.AutomationStatus, stats models.CompletionStats, failures []*models.FailureDetail) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.finalizeCalls++
	if r.s.failFinalize != nil {
		return false, r.s.failFinalize
	}
	a, ok := r.s.automations[id]
	if !ok || a.Status != models.AutomationStatusInProgress || a.IsFinalized() {
		return false, nil
	}
	a.Status = status
	a.Stats = stats
	r.s.writes++

	seen := make(map[uint]bool)
	for _, f := range r.s.failures[id] {
		seen[f.RecipientID] = true
	}
	for _, f := range failures {
		if seen[f.RecipientID] {
			continue
		}
		c := *f
		c.AutomationID = id
		c.ID = r.s.id()
		r.s.failures[id] = append(r.s.failures[id], &c)
		seen[f.RecipientID] = true
	}
	return true, nil
}

func (r memAutomationRepo) SetActive(ctx context.Context, id uint, active bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.automations[id]
	if !ok || a.Status != models.AutomationStatusPending {
		return false, nil
	}
	a.IsActive = utils.ToPtr(active)
	r.s.writes++
	return true, nil
}

func (r memAutomationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Automation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Automation, 0)
	for _, a := range r.s.automations {
		if a.DueAt(now) {
			out = append(out, cloneAutomation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memAutomationRepo) ListInProgress(ctx context.Context, afterID uint, limit int) ([]*models.Automation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Automation, 0)
	for _, a := range r.s.automations {
		if a.ID > afterID && a.Status == models.AutomationStatusInProgress && !a.IsFinalized() {
			out = append(out, cloneAutomation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memAutomationRepo) ListFailureDetails(ctx context.Context, automationID uint) ([]*models.FailureDetail, error) {
	out := r.s.failuresOf(automationID)
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

// send records

type memSendRecordRepo struct{ s *memStore }

func (r memSendRecordRepo) ByID(ctx context.Context, id uint) (*models.SendRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (r memSendRecordRepo) ByFilter(ctx context.Context, filter models.SendRecordFilter, orderBy string, limit, offset int) ([]*models.SendRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids map[uint]bool
	if filter.IDs != nil {
		ids = make(map[uint]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	out := make([]*models.SendRecord, 0)
	for _, rec := range r.s.records {
		switch {
		case ids != nil && !ids[rec.ID]:
			continue
		case filter.TenantID != nil && rec.TenantID != *filter.TenantID:
			continue
		case filter.AutomationID != nil && (rec.AutomationID == nil || *rec.AutomationID != *filter.AutomationID):
			continue
		case filter.RecipientID != nil && rec.RecipientID != *filter.RecipientID:
			continue
		case filter.ProviderMessageID != nil && (rec.ProviderMessageID == nil || *rec.ProviderMessageID != *filter.ProviderMessageID):
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memSendRecordRepo) Save(ctx context.Context, rec *models.SendRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.AutomationID != nil {
		for _, existing := range r.s.records {
			if existing.AutomationID != nil && *existing.AutomationID == *rec.AutomationID && existing.RecipientID == rec.RecipientID {
				return repository.ErrDuplicate
			}
		}
	}
	rec.ID = r.s.id()
	rec.CreatedAt = time.Now().UTC()
	r.s.records[rec.ID] = cloneRecord(rec)
	r.s.writes++
	return nil
}

func (r memSendRecordRepo) SaveBatch(ctx context.Context, recs []*models.SendRecord) error {
	for _, rec := range recs {
		if err := r.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r memSendRecordRepo) Count(ctx context.Context, filter models.SendRecordFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r memSendRecordRepo) Exists(ctx context.Context, filter models.SendRecordFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r memSendRecordRepo) MarkAccepted(ctx context.Context, id uint, providerMessageID string, status models.DeliveryStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.records {
		if existing.ID != id && existing.ProviderMessageID != nil && *existing.ProviderMessageID == providerMessageID {
			return repository.ErrDuplicate
		}
	}
	rec, ok := r.s.records[id]
	if !ok {
		return fmt.Errorf("send record %d not found", id)
	}
	rec.ProviderMessageID = utils.ToPtr(providerMessageID)
	rec.Status = status
	r.s.writes++
	return nil
}

func (r memSendRecordRepo) MarkRejected(ctx context.Context, id uint, errorCode, errorMessage string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return fmt.Errorf("send record %d not found", id)
	}
	rec.Status = models.DeliveryStatusFailed
	rec.ErrorCode = utils.ToPtr(errorCode)
	rec.ErrorMessage = utils.ToPtr(errorMessage)
	r.s.writes++
	return nil
}

func (r memSendRecordRepo) ByTenantAndProviderMessageID(ctx context.Context, tenantID uint, providerMessageID string) (*models.SendRecord, error) {
	rows, err := r.ByFilter(ctx, models.SendRecordFilter{TenantID: &tenantID, ProviderMessageID: &providerMessageID}, "", 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r memSendRecordRepo) ByAutomationAndRecipient(ctx context.Context, automationID, recipientID uint) (*models.SendRecord, error) {
	rows, err := r.ByFilter(ctx, models.SendRecordFilter{AutomationID: &automationID, RecipientID: &recipientID}, "", 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r memSendRecordRepo) ListByIDs(ctx context.Context, ids []uint) ([]*models.SendRecord, error) {
	if len(ids) == 0 {
		return []*models.SendRecord{}, nil
	}
	return r.ByFilter(ctx, models.SendRecordFilter{IDs: ids}, "", 0, 0)
}

func (r memSendRecordRepo) CompareAndSetStatus(ctx context.Context, id uint, expected, next models.DeliveryStatus, errorCode, errorMessage *string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok || rec.Status != expected {
		return false, nil
	}
	rec.Status = next
	if errorCode != nil {
		rec.ErrorCode = errorCode
	}
	if errorMessage != nil {
		rec.ErrorMessage = errorMessage
	}
	rec.UpdatedAt = now
	r.s.writes++
	return true, nil
}

// provider message index

type memIndex struct {
	mu   sync.Mutex
	refs map[string]repository.ProviderMessageRef
	gets int
}

func newMemIndex() *memIndex {
	return &memIndex{refs: make(map[string]repository.ProviderMessageRef)}
}

func (i *memIndex) Put(ctx context.Context, providerMessageID string, ref repository.ProviderMessageRef) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.refs[providerMessageID]; !ok {
		i.refs[providerMessageID] = ref
	}
	return nil
}

func (i *memIndex) Get(ctx context.Context, providerMessageID string) (*repository.ProviderMessageRef, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gets++
	ref, ok := i.refs[providerMessageID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (i *memIndex) forget(providerMessageID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.refs, providerMessageID)
}
