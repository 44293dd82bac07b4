package query

import (
	"context"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/datastax/custom-tables/cache"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/internal/testutil"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

type capabilities map[string]bool

func (c capabilities) Can(_ context.Context, capability string) bool {
	return c[capability]
}

var _ = Describe("Query against SQLite", func() {
	var (
		ctx      = context.Background()
		dir      string
		base     *db.Db
		counting *testutil.CountingSession
		memory   *cache.MemoryCache
		orders   *Query
	)

	newOrders := func(opts ...Option) *Query {
		opts = append([]Option{WithLogger(testutil.TestLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
		q, err := New(ordersConfig(), db.NewDb(counting, db.SQLite), memory, opts...)
		Expect(err).ToNot(HaveOccurred())
		return q
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "orders")
		Expect(err).ToNot(HaveOccurred())

		base = testutil.OpenSQLite(dir)
		testutil.CreateOrders(ctx, base, "wp_orders", 100)
		counting = testutil.NewCountingSession(base.Session())
		memory = cache.NewMemoryCache()
		orders = newOrders()
	})

	AfterEach(func() {
		Expect(base.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Describe("Query()", func() {
		It("Should return active orders of the first half of 2024 by primary key descending", func() {
			result, err := orders.Query(ctx, Vars{
				"status": "active",
				"date_query": map[string]interface{}{
					"after":     "2024-01-01",
					"before":    "2024-06-30",
					"inclusive": true,
				},
				"fields": "ids",
			})
			Expect(err).ToNot(HaveOccurred())

			var expected []interface{}
			end := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
			for i := 100; i >= 1; i-- {
				if testutil.OrderStatus(i) == "active" && !testutil.OrderDate(i).After(end) {
					expected = append(expected, int64(i))
				}
			}
			Expect(expected).ToNot(BeEmpty())
			Expect(result.IDs).To(Equal(expected))
		})

		It("Should serve an identical query from the cache", func() {
			vars := Vars{"status__in": []string{"active", "pending"}, "number": 10, "no_found_rows": false}
			first, err := orders.Query(ctx, vars)
			Expect(err).ToNot(HaveOccurred())
			executed := counting.Queries()

			second, err := orders.Query(ctx, vars)
			Expect(err).ToNot(HaveOccurred())
			Expect(counting.Queries()).To(Equal(executed))
			Expect(second.IDs).To(Equal(first.IDs))
			Expect(second.Items).To(Equal(first.Items))
			Expect(second.FoundItems).To(Equal(int64(67)))
			Expect(second.MaxNumPages).To(Equal(int64(7)))
		})

		It("Should page through results", func() {
			result, err := orders.Query(ctx, Vars{"number": 10, "offset": 90, "order": "ASC", "fields": "ids"})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IDs).To(HaveLen(10))
			Expect(result.IDs[0]).To(Equal(int64(91)))
		})

		It("Should order by position in the in list", func() {
			result, err := orders.Query(ctx, Vars{"id__in": []int{5, 2, 9}, "orderby": "id__in", "fields": "ids"})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IDs).To(Equal([]interface{}{int64(5), int64(2), int64(9)}))
		})

		It("Should compare columns and literals", func() {
			result, err := orders.Query(ctx, Vars{
				"total__compare": map[string]interface{}{"value": 10, "compare": "<"},
				"compare_query":  map[string]interface{}{"key": "subtotal", "value": "total", "compare": "<"},
				"fields":         "ids",
				"order":          "ASC",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IDs).To(Equal([]interface{}{
				int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7), int64(8), int64(9),
			}))
		})

		It("Should match nothing for invalid date values", func() {
			result, err := orders.Query(ctx, Vars{"date_query": map[string]interface{}{"month": 13}})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IDs).To(BeEmpty())
			Expect(result.Items).To(BeEmpty())
		})

		It("Should filter by calendar units", func() {
			result, err := orders.Query(ctx, Vars{
				"date_created_query": map[string]interface{}{"month": 2, "dayofweek_iso": []int{6, 7}, "compare": "IN"},
				"fields":             "ids",
				"number":             0,
			})
			Expect(err).ToNot(HaveOccurred())
			for _, id := range result.IDs {
				date := testutil.OrderDate(int(id.(int64)))
				Expect(date.Month()).To(Equal(time.February))
				Expect(date.Weekday()).To(Or(Equal(time.Saturday), Equal(time.Sunday)))
			}
		})

		It("Should search with wildcards", func() {
			result, err := orders.Query(ctx, Vars{"search": "customer7*", "search_columns": "email", "fields": "ids", "order": "ASC"})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IDs).To(Equal([]interface{}{
				int64(7), int64(70), int64(71), int64(72), int64(73), int64(74), int64(75), int64(76), int64(77), int64(78), int64(79),
			}))
		})

		It("Should count grouped rows", func() {
			result, err := orders.Query(ctx, Vars{"count": true, "groupby": "status"})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Count).To(Equal(int64(100)))
			Expect(result.Groups).To(HaveLen(3))
		})
	})

	Describe("Writes", func() {
		It("Should add an item with defaults and timestamps", func() {
			id, err := orders.AddItem(ctx, types.Row{"email": "new@example.com", "total": "12.5", "unknown": 1})
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(Equal(int64(101)))

			item, err := orders.GetItem(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(item.String("status")).To(Equal("pending"))
			Expect(item.Time("date_created").Equal(fixedNow)).To(BeTrue())
			Expect(item.Time("date_modified").Equal(fixedNow)).To(BeTrue())
			Expect(item.Decimal("total").String()).To(Equal("12.5"))
			Expect(item.Has("unknown")).To(BeFalse())
		})

		It("Should reject the whole write when a value is invalid", func() {
			_, err := orders.AddItem(ctx, types.Row{"email": "not an email", "status": "active"})
			var validationError *schema.ValidationError
			Expect(errors.As(err, &validationError)).To(BeTrue())
			Expect(validationError.Column).To(Equal("email"))

			count, err := base.CountRows(ctx, "wp_orders")
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(int64(100)))
		})

		It("Should never serve pre-update data after an update", func() {
			vars := Vars{"status": "refunded", "number": 0}
			before, err := orders.Query(ctx, vars)
			Expect(err).ToNot(HaveOccurred())
			Expect(before.IDs).ToNot(ContainElement(int64(3)))

			updated, err := orders.UpdateItem(ctx, 3, types.Row{"status": "refunded"})
			Expect(err).ToNot(HaveOccurred())
			Expect(updated).To(BeTrue())

			after, err := orders.Query(ctx, vars)
			Expect(err).ToNot(HaveOccurred())
			Expect(after.IDs).To(ContainElement(int64(3)))

			item, err := orders.GetItem(ctx, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(item.String("status")).To(Equal("refunded"))
			Expect(item.Time("date_modified").Equal(fixedNow)).To(BeTrue())
		})

		It("Should skip updates that change nothing", func() {
			token := cache.LastChanged(memory, orders.Config().CacheGroup)
			commands := counting.Commands()

			updated, err := orders.UpdateItem(ctx, 3, types.Row{"status": "active", "total": 3.5})
			Expect(err).ToNot(HaveOccurred())
			Expect(updated).To(BeTrue())
			Expect(counting.Commands()).To(Equal(commands))
			Expect(cache.LastChanged(memory, orders.Config().CacheGroup)).To(Equal(token))
		})

		It("Should evict cache key lookups of the old and new values", func() {
			item, err := orders.GetItemBy(ctx, "email", "customer4@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(item.Int64("id")).To(Equal(int64(4)))

			_, err = orders.UpdateItem(ctx, 4, types.Row{"email": "renamed@example.com"})
			Expect(err).ToNot(HaveOccurred())

			_, err = orders.GetItemBy(ctx, "email", "customer4@example.com")
			Expect(err).To(MatchError(ErrNotFound))
			item, err = orders.GetItemBy(ctx, "email", "renamed@example.com")
			Expect(err).ToNot(HaveOccurred())
			Expect(item.Int64("id")).To(Equal(int64(4)))
		})

		It("Should delete items", func() {
			deleted, err := orders.DeleteItem(ctx, 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(deleted).To(BeTrue())

			_, err = orders.GetItem(ctx, 10)
			Expect(err).To(MatchError(ErrNotFound))

			deleted, err = orders.DeleteItem(ctx, 10)
			Expect(deleted).To(BeFalse())
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("Should require column capabilities when a checker is set", func() {
			cfg := ordersConfig()
			columns := testutil.OrdersColumns()
			columns[3].Caps = map[schema.Operation]string{schema.OpUpdate: "edit_totals"}
			cfg.Schema = schema.New(columns...)

			q, err := New(cfg, db.NewDb(counting, db.SQLite), memory, WithCapabilityChecker(capabilities{}))
			Expect(err).ToNot(HaveOccurred())

			_, err = q.UpdateItem(ctx, 1, types.Row{"total": 99})
			Expect(errors.Is(err, ErrForbidden)).To(BeTrue())
			var writeError *WriteError
			Expect(errors.As(err, &writeError)).To(BeTrue())

			_, err = q.UpdateItem(ctx, 1, types.Row{"status": "active"})
			Expect(err).ToNot(HaveOccurred())

			q, err = New(cfg, db.NewDb(counting, db.SQLite), memory, WithCapabilityChecker(capabilities{"edit_totals": true}))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.UpdateItem(ctx, 1, types.Row{"total": 99})
			Expect(err).ToNot(HaveOccurred())
		})

		It("Should let FilterItemData rewrite or cancel writes", func() {
			q := newOrders(WithHooks(Hooks{
				FilterItemData: func(ctx context.Context, op schema.Operation, data types.Row) (types.Row, error) {
					if op == schema.OpDelete {
						return nil, errors.New("orders are never deleted")
					}
					if total, ok := data["subtotal"]; ok {
						data["total"] = types.ToStorage(total, "decimal")
					}
					return data, nil
				},
			}))

			id, err := q.AddItem(ctx, types.Row{"subtotal": "20"})
			Expect(err).ToNot(HaveOccurred())
			item, err := q.GetItem(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(item.Float64("total")).To(Equal(20.0))

			_, err = q.DeleteItem(ctx, id)
			var writeError *WriteError
			Expect(errors.As(err, &writeError)).To(BeTrue())
		})
	})
})
