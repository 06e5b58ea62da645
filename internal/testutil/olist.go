package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Olist dataset headers.
var (
	OrdersHeader = []string{
		"order_id", "customer_id", "order_status", "order_purchase_timestamp",
		"order_approved_at", "order_delivered_carrier_date",
		"order_delivered_customer_date", "order_estimated_delivery_date",
	}
	ItemsHeader = []string{
		"order_id", "order_item_id", "product_id", "seller_id",
		"shipping_limit_date", "price", "freight_value",
	}
)

// Order is one row of the orders file. Empty fields are written empty and
// load as null.
type Order struct {
	ID, Customer, Status                    string
	Purchased, Approved, Carrier, Delivered string
	Estimated                               string
}

// Item is one row of the order items file.
type Item struct {
	OrderID, ItemID, ProductID, SellerID string
	ShippingLimit, Price, Freight        string
}

func (o Order) record() []string {
	return []string{o.ID, o.Customer, o.Status, o.Purchased, o.Approved, o.Carrier, o.Delivered, o.Estimated}
}

func (i Item) record() []string {
	return []string{i.OrderID, i.ItemID, i.ProductID, i.SellerID, i.ShippingLimit, i.Price, i.Freight}
}

// DeliveredOrder returns a fully populated delivered order purchased and
// delivered at the given "yyyy-MM-dd HH:mm:ss" timestamps.
func DeliveredOrder(id, purchased, delivered string) Order {
	return Order{
		ID:        id,
		Customer:  "c-" + id,
		Status:    "delivered",
		Purchased: purchased,
		Approved:  purchased,
		Carrier:   purchased,
		Delivered: delivered,
		Estimated: delivered,
	}
}

// SimpleItem returns line item 1 of order for product at price.
func SimpleItem(order, product, price string) Item {
	return Item{
		OrderID:       order,
		ItemID:        "1",
		ProductID:     product,
		SellerID:      "s1",
		ShippingLimit: "2024-01-01 00:00:00",
		Price:         price,
		Freight:       "10.0",
	}
}

// OlistFiles are the paths of a written fixture pair.
type OlistFiles struct {
	Orders string
	Items  string
}

// WriteOlist writes the orders and items CSV files into dir under their
// dataset names.
func WriteOlist(t testing.TB, dir string, orders []Order, items []Item) OlistFiles {
	t.Helper()
	files := OlistFiles{
		Orders: filepath.Join(dir, "olist_orders_dataset.csv"),
		Items:  filepath.Join(dir, "olist_order_items_dataset.csv"),
	}

	ordersRows := make([][]string, len(orders))
	for i, o := range orders {
		ordersRows[i] = o.record()
	}
	itemsRows := make([][]string, len(items))
	for i, it := range items {
		itemsRows[i] = it.record()
	}

	writeCSV(t, files.Orders, OrdersHeader, ordersRows)
	writeCSV(t, files.Items, ItemsHeader, itemsRows)
	return files
}

func writeCSV(t testing.TB, path string, header []string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, w.Error())
}
