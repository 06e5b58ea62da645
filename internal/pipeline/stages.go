package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/paveg/ecomlake/internal/config"
	"github.com/paveg/ecomlake/internal/engine"
	"github.com/paveg/ecomlake/internal/errors"
	"github.com/paveg/ecomlake/internal/storage"
	"github.com/paveg/ecomlake/internal/validation"
	"golang.org/x/sync/errgroup"
)

// Column names of the Olist dataset used by the stages.
const (
	ColOrderID           = "order_id"
	ColOrderItemID       = "order_item_id"
	ColProductID         = "product_id"
	ColSellerID          = "seller_id"
	ColOrderStatus       = "order_status"
	ColPrice             = "price"
	ColPurchaseTimestamp = "order_purchase_timestamp"
	ColApprovedAt        = "order_approved_at"
	ColCarrierDate       = "order_delivered_carrier_date"
	ColCustomerDate      = "order_delivered_customer_date"
	ColEstimatedDate     = "order_estimated_delivery_date"
	ColShippingLimitDate = "shipping_limit_date"

	ColTotalRevenue = "total_revenue"
	ColTotalOrders  = "Total_orders"
)

// Columns the stages read from each input.
var (
	requiredOrderColumns = []string{
		ColOrderID, ColOrderStatus, ColPurchaseTimestamp, ColApprovedAt,
		ColCarrierDate, ColCustomerDate, ColEstimatedDate,
	}
	requiredItemColumns = []string{
		ColOrderID, ColOrderItemID, ColProductID, ColSellerID, ColShippingLimitDate, ColPrice,
	}

	// Evaluated on loaded values, before any timestamp parsing.
	dropNullColumns = []string{ColOrderID, ColOrderItemID, ColProductID, ColCustomerDate}

	fillColumns = []string{ColOrderStatus, ColSellerID}

	timestampColumns = []string{
		ColPurchaseTimestamp, ColCarrierDate, ColCustomerDate,
		ColEstimatedDate, ColShippingLimitDate, ColApprovedAt,
	}
)

// monthlyShowRows is how many monthly rows the console shows.
const monthlyShowRows = 20

const (
	partFile    = "part-00000.parquet"
	successFile = "_SUCCESS"
)

func (p *Pipeline) rawDir() string {
	return storage.Join(p.cfg.Storage.Root, "raw")
}

func (p *Pipeline) analyticsDir() string {
	return storage.Join(p.cfg.Storage.Root, "analytics")
}

type input struct {
	title string
	table string
	local string
}

func (p *Pipeline) inputs() []input {
	return []input{
		{"Orders", TableOrders, p.cfg.Input.Orders},
		{"Orders item", TableOrderItems, p.cfg.Input.OrderItems},
	}
}

// rawPath is where a local input file is staged.
func (p *Pipeline) rawPath(local string) string {
	return storage.Join(p.rawDir(), filepath.Base(local))
}

// Ingest copies both input files unchanged into <root>/raw.
func (p *Pipeline) Ingest(ctx context.Context, res *Result) error {
	if err := p.store.MkdirAll(ctx, p.rawDir()); err != nil {
		return fmt.Errorf("creating raw directory: %w", err)
	}
	for _, in := range p.inputs() {
		dst := p.rawPath(in.local)
		if err := p.store.Put(ctx, in.local, dst, p.cfg.Pipeline.OverwriteRaw); err != nil {
			return fmt.Errorf("staging %s: %w", in.local, err)
		}
		p.reporter.Staged(in.local, p.store.URI(dst))
		res.Staged = append(res.Staged, dst)
	}
	return nil
}

// Load parses both staged files concurrently, then checks and prints their
// schemas and row counts.
func (p *Pipeline) Load(ctx context.Context, res *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, in := range p.inputs() {
		g.Go(func() error {
			return p.loadTable(gctx, in.table, p.rawPath(in.local))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	required := map[string][]string{
		TableOrders:     requiredOrderColumns,
		TableOrderItems: requiredItemColumns,
	}
	validators := make([]validation.Validator, 0, 2)
	counts := make(map[string]int, 2)
	for _, in := range p.inputs() {
		info, err := p.engine.Describe(ctx, in.table)
		if err != nil {
			return err
		}
		validators = append(validators, validation.NewColumnValidator(info, "load "+in.table, required[in.table]...))
		counts[in.table] = info.Rows
		p.reporter.Schema(in.title, info)
		p.metrics.ObserveRows(in.table, info.Rows)
	}
	for _, in := range p.inputs() {
		p.reporter.RowCount(in.title, counts[in.table])
	}
	res.OrdersRows = counts[TableOrders]
	res.OrderItemsRows = counts[TableOrderItems]

	return validation.NewJoinedValidator(validators...).Validate()
}

func (p *Pipeline) loadTable(ctx context.Context, table, path string) (err error) {
	rc, err := p.store.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := p.engine.ReadCSV(ctx, table, rc); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	p.logger.Debug("table loaded", slog.String("table", table), slog.String("path", path))
	return nil
}

// Integrate joins the inputs into the integrated table and cleanses it.
func (p *Pipeline) Integrate(ctx context.Context, res *Result) error {
	if err := p.engine.Join(ctx, TableIntegrated, TableOrders, TableOrderItems, ColOrderID); err != nil {
		return err
	}
	for _, t := range []string{TableOrders, TableOrderItems} {
		if err := p.engine.Drop(ctx, t); err != nil {
			return err
		}
	}
	if err := p.engine.DropNulls(ctx, TableIntegrated, TableIntegrated, dropNullColumns); err != nil {
		return err
	}
	if err := p.engine.FillNulls(ctx, TableIntegrated, TableIntegrated, p.cfg.Pipeline.FillValue, fillColumns); err != nil {
		return err
	}
	if err := p.engine.ToTimestamp(ctx, TableIntegrated, TableIntegrated, timestampColumns, p.cfg.TimestampPattern()); err != nil {
		return err
	}

	info, err := p.engine.Describe(ctx, TableIntegrated)
	if err != nil {
		return err
	}
	res.IntegratedRows = info.Rows
	p.metrics.ObserveRows(TableIntegrated, info.Rows)
	p.logger.Debug("integrated", slog.Int("rows", info.Rows))
	return nil
}

// Aggregate computes the four business metrics from the integrated table.
func (p *Pipeline) Aggregate(ctx context.Context, res *Result) error {
	delivered := engine.Eq(ColOrderStatus, p.cfg.Pipeline.DeliveredStatus)

	total, err := p.engine.Sum(ctx, TableIntegrated, ColPrice, delivered)
	if err != nil {
		return fmt.Errorf("total revenue: %w", err)
	}
	res.TotalRevenue = total
	p.reporter.Scalar("Total Revenue", total)

	if err := p.engine.MonthlySum(ctx, TableMonthly, TableIntegrated, ColCustomerDate, ColPrice, ColTotalRevenue, delivered); err != nil {
		return fmt.Errorf("monthly revenue: %w", err)
	}
	monthly, err := p.engine.Rows(ctx, TableMonthly, -1)
	if err != nil {
		return err
	}
	res.MonthlyRevenue = monthly
	p.metrics.ObserveRows(TableMonthly, len(monthly.Values))
	p.reporter.Table("Monthly Revenue", monthly, monthlyShowRows)

	if err := p.engine.CountBy(ctx, TableTopProducts, TableIntegrated, ColProductID, ColOrderID, ColTotalOrders, delivered); err != nil {
		return fmt.Errorf("top selling products: %w", err)
	}
	top, err := p.engine.Rows(ctx, TableTopProducts, -1)
	if err != nil {
		return err
	}
	res.TopProducts = top
	p.metrics.ObserveRows(TableTopProducts, len(top.Values))
	p.reporter.Table(fmt.Sprintf("Top %d selling products", p.cfg.Pipeline.TopN), top, p.cfg.Pipeline.TopN)

	aov, err := p.engine.Mean(ctx, TableIntegrated, ColPrice, nil)
	if err != nil {
		return fmt.Errorf("average order value: %w", err)
	}
	res.AverageOrderValue = aov
	p.reporter.Scalar("Average order value", aov)

	p.metrics.SetScalars(total, aov)
	return nil
}

type output struct {
	name  string
	table string
}

func outputs() []output {
	return []output{
		{OutputTotalOrders, TableIntegrated},
		{OutputMonthlyRevenue, TableMonthly},
		{OutputTopProducts, TableTopProducts},
	}
}

// Persist writes the integrated, monthly and top products tables under
// <root>/analytics, one directory each, honoring the output mode.
func (p *Pipeline) Persist(ctx context.Context, res *Result) error {
	if err := p.store.MkdirAll(ctx, p.analyticsDir()); err != nil {
		return fmt.Errorf("creating analytics directory: %w", err)
	}

	existing := make(map[string]bool)
	for _, out := range outputs() {
		dir := storage.Join(p.analyticsDir(), out.name)
		ok, err := p.store.Exists(ctx, dir)
		if err != nil {
			return err
		}
		existing[out.name] = ok
		if ok && p.cfg.Output.Mode == config.ModeError {
			return fmt.Errorf("%s: %w", p.store.URI(dir), errors.ErrOutputExists)
		}
	}

	for _, out := range outputs() {
		dir := storage.Join(p.analyticsDir(), out.name)
		if existing[out.name] {
			if p.cfg.Output.Mode == config.ModeIgnore {
				p.reporter.Skipped(p.store.URI(dir))
				res.Skipped = append(res.Skipped, dir)
				continue
			}
			if err := p.store.RemoveAll(ctx, dir); err != nil {
				return fmt.Errorf("replacing %s: %w", dir, err)
			}
		}
		if err := p.writeOutput(ctx, dir, out.table); err != nil {
			return fmt.Errorf("writing %s: %w", out.name, err)
		}
		res.Outputs = append(res.Outputs, dir)
	}
	return nil
}

func (p *Pipeline) writeOutput(ctx context.Context, dir, table string) error {
	if err := p.store.MkdirAll(ctx, dir); err != nil {
		return err
	}

	err := p.create(ctx, storage.Join(dir, partFile), func(w io.Writer) error {
		return p.engine.WriteParquet(ctx, table, w, p.cfg.Output.Compression)
	})
	if err != nil {
		return err
	}
	if err := p.create(ctx, storage.Join(dir, successFile), func(io.Writer) error { return nil }); err != nil {
		return err
	}
	p.logger.Debug("output written", slog.String("table", table), slog.String("dir", p.store.URI(dir)))
	return nil
}

func (p *Pipeline) create(ctx context.Context, path string, write func(io.Writer) error) error {
	w, err := p.store.Create(ctx, path)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
