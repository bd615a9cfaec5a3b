package integration

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-sync-controller/internal/connectors"
	"github.com/stacklok/toolhive-sync-controller/internal/flags"
	"github.com/stacklok/toolhive-sync-controller/internal/scheduling"
	"github.com/stacklok/toolhive-sync-controller/internal/store"
	"github.com/stacklok/toolhive-sync-controller/test-integration/controller/helpers"
)

var _ = Describe("Connection Controller", Label("controller"), func() {
	var (
		tempDir string
		service *helpers.CommandService
	)

	BeforeEach(func() {
		tempDir = createTempDir("controller-test-")
		service = helpers.NewCommandService()
	})

	AfterEach(func() {
		service.Close()
		cleanupTempDir(tempDir)
	})

	Context("Scheduled sync", func() {
		It("should run the first sync to success and restart clean", func() {
			f := newFixture(service, writeFlagFile(tempDir))

			env := f.run(scheduling.NewControllerInput(f.connection.ID))

			next := nextInput(env)
			Expect(next.ConnectionID).To(Equal(f.connection.ID))
			Expect(next.JobID).To(BeNil())
			Expect(next.AttemptNumber).To(Equal(1))
			Expect(next.FromFailure).To(BeFalse())

			job := f.lastJob()
			Expect(job.Status).To(Equal(store.JobStatusSucceeded))
			Expect(job.IsScheduled).To(BeTrue())
			Expect(job.Attempts).To(HaveLen(1))
			Expect(job.Attempts[0].RecordsCommitted).To(Equal(int64(100)))

			By("skipping connection checks after a clean history")
			Expect(service.Checks()).To(BeEmpty())

			replications := service.Replications()
			Expect(replications).To(HaveLen(1))
			Expect(replications[0].ConnectionID).To(Equal(f.connection.ID.String()))
			Expect(replications[0].SourceID).To(Equal(f.connection.SourceID.String()))
			Expect(replications[0].JobID).To(Equal(job.ID))
		})

		It("should hydrate the sync input itself when sync v2 is enabled", func() {
			f := newFixture(service, writeFlagFile(tempDir, flags.UseSyncV2))

			env := f.run(scheduling.NewControllerInput(f.connection.ID))

			Expect(nextInput(env).JobID).To(BeNil())
			Expect(f.lastJob().Status).To(Equal(store.JobStatusSucceeded))
			replications := service.Replications()
			Expect(replications).To(HaveLen(1))
			Expect(replications[0].WorkspaceID).To(Equal(f.workspace.ID.String()))
			Expect(replications[0].DestinationID).To(Equal(f.connection.DestinationID.String()))
		})
	})

	Context("Failed replication", func() {
		It("should retry the same job and check both actors before the next attempt", func() {
			f := newFixture(service, writeFlagFile(tempDir))
			service.QueueReplications(helpers.ReplicationResult{
				Status: connectors.CommandStatusFailed,
				Output: connectors.ReplicationOutput{
					FailureOrigin:  "source",
					FailureMessage: "connection reset by peer",
				},
			})

			By("failing the first attempt")
			env := f.run(scheduling.NewControllerInput(f.connection.ID))
			retry := nextInput(env)
			Expect(retry.JobID).NotTo(BeNil())
			Expect(retry.AttemptNumber).To(Equal(2))
			Expect(retry.FromFailure).To(BeTrue())

			job := f.lastJob()
			Expect(job.ID).To(Equal(*retry.JobID))
			Expect(job.Status).To(Equal(store.JobStatusIncomplete))
			Expect(job.Attempts).To(HaveLen(1))
			Expect(job.Attempts[0].Status).To(Equal(store.AttemptStatusFailed))
			Expect(job.Attempts[0].FailureSummary).NotTo(BeNil())

			By("succeeding on the retry")
			env = f.run(retry)
			Expect(nextInput(env).JobID).To(BeNil())

			job = f.lastJob()
			Expect(job.ID).To(Equal(*retry.JobID))
			Expect(job.Status).To(Equal(store.JobStatusSucceeded))
			Expect(job.Attempts).To(HaveLen(2))

			checks := service.Checks()
			Expect(checks).To(HaveLen(2))
			Expect(checks[0].ActorType).To(Equal(connectors.ActorTypeSource))
			Expect(checks[1].ActorType).To(Equal(connectors.ActorTypeDestination))
			Expect(service.Replications()).To(HaveLen(2))
		})

		It("should fail the job for good without replicating when a check fails", func() {
			f := newFixture(service, writeFlagFile(tempDir))
			service.QueueReplications(helpers.ReplicationResult{Status: connectors.CommandStatusFailed})

			retry := nextInput(f.run(scheduling.NewControllerInput(f.connection.ID)))
			Expect(retry.AttemptNumber).To(Equal(2))

			service.FailChecks()
			next := nextInput(f.run(retry))

			By("restarting clean since configuration errors are never retried")
			Expect(next.JobID).To(BeNil())
			Expect(next.AttemptNumber).To(Equal(1))
			Expect(next.FromFailure).To(BeFalse())

			Expect(service.Checks()).To(HaveLen(1))
			Expect(service.Replications()).To(HaveLen(1))
			job := f.lastJob()
			Expect(job.Status).To(Equal(store.JobStatusFailed))
			Expect(job.Attempts).To(HaveLen(2))
			Expect(job.Attempts[1].Status).To(Equal(store.AttemptStatusFailed))
		})
	})

	Context("Deleted workspace", func() {
		It("should stop for good without creating a job", func() {
			f := newFixture(service, writeFlagFile(tempDir))
			f.workspace.Tombstone = true
			Expect(f.store.UpsertWorkspace(ctx, f.workspace)).To(Succeed())

			env := f.run(scheduling.NewControllerInput(f.connection.ID))

			Expect(env.GetWorkflowError()).NotTo(HaveOccurred())
			_, err := f.store.LastJob(ctx, f.connection.ID)
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(service.Replications()).To(BeEmpty())
		})
	})

	Context("Unknown connection", func() {
		It("should not start a job for a connection missing from the store", func() {
			f := newFixture(service, writeFlagFile(tempDir))

			env := f.run(scheduling.NewControllerInput(uuid.New()))

			Expect(nextInput(env).JobID).To(BeNil())
			Expect(service.Replications()).To(BeEmpty())
		})
	})
})
