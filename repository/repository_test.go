package repository_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	testingutil "github.com/amirphl/wedding-automations/testing"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDB(t *testing.T, fn func(t *testing.T, db *testingutil.TestDB, fixtures *testingutil.TestFixtures)) {
	t.Helper()
	if !testingutil.Enabled() {
		t.Skip("TEST_DB_HOST not set")
	}
	err := testingutil.TestWithDB(func(db *testingutil.TestDB) error {
		fn(t, db, testingutil.NewTestFixtures(db))
		return nil
	})
	require.NoError(t, err)
}

func TestAutomationRepositoryClaimForDispatch(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := testingutil.CreateTestContext()
		repo := repository.NewAutomationRepository(db.DB)
		now := utils.UTCNow()

		tenant, err := fixtures.CreateTestTenant("Ana & Ben")
		require.NoError(t, err)

		t.Run("ExactlyOneConcurrentWinner", func(t *testing.T) {
			a, err := fixtures.CreateTestAutomation(tenant.ID, now.Add(-time.Minute))
			require.NoError(t, err)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					won, err := repo.ClaimForDispatch(ctx, a.ID, now)
					assert.NoError(t, err)
					if won {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.EqualValues(t, 1, wins.Load())

			stored, err := repo.ByID(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, models.AutomationStatusInProgress, stored.Status)
			require.NotNil(t, stored.StartedAt)
		})

		t.Run("NotDue", func(t *testing.T) {
			a, err := fixtures.CreateTestAutomation(tenant.ID, now.Add(time.Hour))
			require.NoError(t, err)
			won, err := repo.ClaimForDispatch(ctx, a.ID, now)
			require.NoError(t, err)
			assert.False(t, won)
		})

		t.Run("Inactive", func(t *testing.T) {
			a, err := fixtures.CreateTestAutomation(tenant.ID, now.Add(-time.Hour))
			require.NoError(t, err)
			changed, err := repo.SetActive(ctx, a.ID, false)
			require.NoError(t, err)
			require.True(t, changed)

			won, err := repo.ClaimForDispatch(ctx, a.ID, now)
			require.NoError(t, err)
			assert.False(t, won)
		})
	})
}

func TestAutomationRepositoryAppendAndFinalize(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := testingutil.CreateTestContext()
		repo := repository.NewAutomationRepository(db.DB)
		now := utils.UTCNow()

		tenant, err := fixtures.CreateTestTenant("Ana & Ben")
		require.NoError(t, err)
		recipients, err := fixtures.CreateTestRecipients(tenant.ID, nil, nil)
		require.NoError(t, err)
		a, err := fixtures.CreateTestAutomation(tenant.ID, now.Add(-time.Minute))
		require.NoError(t, err)

		won, err := repo.ClaimForDispatch(ctx, a.ID, now)
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, repo.SetAudienceSize(ctx, a.ID, 2))

		r1, err := fixtures.CreateTestSendRecord(tenant.ID, &a.ID, recipients[0])
		require.NoError(t, err)
		r2, err := fixtures.CreateTestSendRecord(tenant.ID, &a.ID, recipients[1])
		require.NoError(t, err)

		require.NoError(t, repo.AppendSendRecordID(ctx, a.ID, r1.ID))
		require.NoError(t, repo.AppendSendRecordID(ctx, a.ID, r1.ID))
		require.NoError(t, repo.AppendSendRecordID(ctx, a.ID, r2.ID))

		stored, err := repo.ByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{int64(r1.ID), int64(r2.ID)}, []int64(stored.SendRecordIDs))
		assert.Equal(t, 2, utils.Deref(stored.AudienceSize))

		stats := models.CompletionStats{SuccessfulMessages: 1, FailedMessages: 1, CompletedAt: utils.ToPtr(now)}
		failures := []*models.FailureDetail{{
			RecipientID:  recipients[1].ID,
			SendRecordID: utils.ToPtr(r2.ID),
			Address:      recipients[1].Address,
			Reason:       models.FailureReasonDeliveryFailed,
			ErrorCode:    utils.ToPtr("30007"),
		}}

		won, err = repo.Finalize(ctx, a.ID, models.AutomationStatusFailed, stats, failures)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = repo.Finalize(ctx, a.ID, models.AutomationStatusFailed, stats, failures)
		require.NoError(t, err)
		assert.False(t, won)

		details, err := repo.ListFailureDetails(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, "30007", utils.Deref(details[0].ErrorCode))

		stored, err = repo.ByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AutomationStatusFailed, stored.Status)
		assert.True(t, stored.IsFinalized())
	})
}

func TestSendRecordRepository(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := testingutil.CreateTestContext()
		repo := repository.NewSendRecordRepository(db.DB)

		tenant, err := fixtures.CreateTestTenant("Ana & Ben")
		require.NoError(t, err)
		recipients, err := fixtures.CreateTestRecipients(tenant.ID, nil, nil)
		require.NoError(t, err)
		a, err := fixtures.CreateTestAutomation(tenant.ID, utils.UTCNow())
		require.NoError(t, err)

		record, err := fixtures.CreateTestSendRecord(tenant.ID, &a.ID, recipients[0])
		require.NoError(t, err)

		t.Run("DuplicateRecipientRejected", func(t *testing.T) {
			dup := &models.SendRecord{
				CorrelationID: record.CorrelationID,
				TenantID:      tenant.ID,
				AutomationID:  &a.ID,
				RecipientID:   recipients[0].ID,
				Status:        models.DeliveryStatusQueued,
				Address:       recipients[0].Address,
				TemplateRef:   "HXrsvp",
				Variables:     models.TemplateVariables{},
			}
			err := repo.Save(ctx, dup)
			assert.ErrorIs(t, err, repository.ErrDuplicate)
		})

		t.Run("MarkAcceptedAndLookup", func(t *testing.T) {
			require.NoError(t, repo.MarkAccepted(ctx, record.ID, "SM0001", models.DeliveryStatusQueued))

			found, err := repo.ByTenantAndProviderMessageID(ctx, tenant.ID, "SM0001")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, record.ID, found.ID)

			other, err := fixtures.CreateTestTenant("Carla & Dan")
			require.NoError(t, err)
			missing, err := repo.ByTenantAndProviderMessageID(ctx, other.ID, "SM0001")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ProviderMessageIDIsUnique", func(t *testing.T) {
			second, err := fixtures.CreateTestSendRecord(tenant.ID, &a.ID, recipients[1])
			require.NoError(t, err)
			err = repo.MarkAccepted(ctx, second.ID, "SM0001", models.DeliveryStatusQueued)
			assert.ErrorIs(t, err, repository.ErrDuplicate)
		})

		t.Run("CompareAndSetStatus", func(t *testing.T) {
			now := utils.UTCNow()
			ok, err := repo.CompareAndSetStatus(ctx, record.ID, models.DeliveryStatusQueued, models.DeliveryStatusDelivered, nil, nil, now)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = repo.CompareAndSetStatus(ctx, record.ID, models.DeliveryStatusQueued, models.DeliveryStatusFailed, utils.ToPtr("30007"), nil, now)
			require.NoError(t, err)
			assert.False(t, ok)

			stored, err := repo.ByID(ctx, record.ID)
			require.NoError(t, err)
			assert.Equal(t, models.DeliveryStatusDelivered, stored.Status)
			assert.Nil(t, stored.ErrorCode)
		})
	})
}

func TestTenantRepositoryPaging(t *testing.T) {
	withDB(t, func(t *testing.T, db *testingutil.TestDB, fixtures *testingutil.TestFixtures) {
		ctx := testingutil.CreateTestContext()
		repo := repository.NewTenantRepository(db.DB)

		var ids []uint
		for i := 0; i < 5; i++ {
			tenant, err := fixtures.CreateTestTenant("couple")
			require.NoError(t, err)
			ids = append(ids, tenant.ID)
		}

		page, err := repo.ListIDsAfter(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, ids[:2], page)

		page, err = repo.ListIDsAfter(ctx, page[1], 10)
		require.NoError(t, err)
		assert.Equal(t, ids[2:], page)
	})
}
