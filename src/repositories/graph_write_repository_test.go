package repositories_test

import (
	"context"
	"errors"
	"log/slog"
	"time"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/neo4j"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/repositories"
)

// fakeClient records every ExecuteBatch call and replays scripted errors.
type fakeClient struct {
	batches [][]neo4j.Statement
	errs    []error
	calls   int
}

func (f *fakeClient) ExecuteBatch(ctx context.Context, statements []neo4j.Statement) error {
	f.batches = append(f.batches, statements)
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeClient) VerifyConnectivity(ctx context.Context) error { return nil }
func (f *fakeClient) Close(ctx context.Context) error              { return nil }

func transientError() error {
	return &neo4jdriver.Neo4jError{
		Code: "Neo.TransientError.Transaction.DeadlockDetected",
		Msg:  "deadlock detected",
	}
}

var _ = Describe("GraphWriteRepository", func() {
	var (
		client *fakeClient
		ctx    context.Context
	)

	newRepository := func(chunkSize, maxRetries int) *repositories.GraphWriteRepository {
		return repositories.NewGraphWriteRepository(slog.Default(), client, nil, chunkSize, maxRetries, time.Millisecond)
	}

	BeforeEach(func() {
		client = &fakeClient{}
		ctx = context.Background()
	})

	It("commits all query events in a single batch call", func() {
		// ARRANGE
		repository := newRepository(1000, 3)
		events := []domain.QueryEvents{
			{Statement: "MERGE A", Events: []map[string]any{{"id": 1}, {"id": 2}}},
			{Statement: "MERGE B", Events: []map[string]any{{"id": 3}}},
		}

		// ACT
		err := repository.WriteBatch(ctx, events)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(client.calls).To(Equal(1))
		Expect(client.batches[0]).To(HaveLen(2))
		Expect(client.batches[0][0].Cypher).To(Equal("MERGE A"))
		Expect(client.batches[0][0].Params["events"]).To(HaveLen(2))
	})

	It("chunks parameter lists to the configured bound, preserving order", func() {
		repository := newRepository(2, 3)
		events := []domain.QueryEvents{
			{Statement: "MERGE A", Events: []map[string]any{
				{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4}, {"id": 5},
			}},
		}

		err := repository.WriteBatch(ctx, events)

		Expect(err).NotTo(HaveOccurred())
		Expect(client.batches[0]).To(HaveLen(3))
		Expect(client.batches[0][0].Params["events"]).To(Equal([]map[string]any{{"id": 1}, {"id": 2}}))
		Expect(client.batches[0][2].Params["events"]).To(Equal([]map[string]any{{"id": 5}}))
	})

	It("retries transient failures and eventually commits", func() {
		client.errs = []error{transientError(), transientError()}
		repository := newRepository(1000, 5)

		err := repository.WriteBatch(ctx, []domain.QueryEvents{
			{Statement: "MERGE A", Events: []map[string]any{{"id": 1}}},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(client.calls).To(Equal(3))
	})

	It("classifies exhausted transient retries", func() {
		client.errs = []error{transientError(), transientError(), transientError()}
		repository := newRepository(1000, 2)

		err := repository.WriteBatch(ctx, []domain.QueryEvents{
			{Statement: "MERGE A", Events: []map[string]any{{"id": 1}}},
		})

		Expect(err).To(MatchError(domain.ErrTransientDriver))
		Expect(client.calls).To(Equal(3))
	})

	It("does not retry permanent failures", func() {
		client.errs = []error{errors.New("Neo.ClientError.Schema.ConstraintValidationFailed")}
		repository := newRepository(1000, 5)

		err := repository.WriteBatch(ctx, []domain.QueryEvents{
			{Statement: "MERGE A", Events: []map[string]any{{"id": 1}}},
		})

		Expect(err).To(MatchError(domain.ErrPermanentDriver))
		Expect(client.calls).To(Equal(1))
	})

	It("skips empty batches without touching the client", func() {
		repository := newRepository(1000, 3)

		err := repository.WriteBatch(ctx, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(client.calls).To(BeZero())
	})
})
