package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// Price decodes supplier prices, which arrive as numbers, numeric strings or
// ranges such as "1.20-3.40". A range yields its lower bound.
type Price struct {
	decimal.Decimal
}

func (p *Price) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		p.Decimal = decimal.Zero
		return nil
	}
	if i := strings.IndexAny(s, "-~"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid price %q", s)
	}
	p.Decimal = d
	return nil
}

// ProductListParams filters the catalog listing. Page is 1-based.
type ProductListParams struct {
	Page       int
	PageSize   int
	CategoryID string
}

// ProductSummary is one entry of a catalog page
type ProductSummary struct {
	PID          domain.FlexString `json:"pid"`
	NameEn       string            `json:"productNameEn"`
	SKU          string            `json:"productSku"`
	Description  string            `json:"description"`
	SellPrice    Price             `json:"sellPrice"`
	CategoryName string            `json:"categoryName"`
	Image        string            `json:"productImage"`
	Weight       Price             `json:"productWeight"`
}

// ProductPage is a page of the catalog
type ProductPage struct {
	PageNum  domain.FlexInt   `json:"pageNum"`
	PageSize domain.FlexInt   `json:"pageSize"`
	Total    domain.FlexInt   `json:"total"`
	List     []ProductSummary `json:"list"`
}

// Variant is a purchasable variant of a product
type Variant struct {
	VID       domain.FlexString `json:"vid"`
	PID       domain.FlexString `json:"pid"`
	NameEn    string            `json:"variantNameEn"`
	SKU       string            `json:"variantSku"`
	SellPrice Price             `json:"variantSellPrice"`
	Image     string            `json:"variantImage"`
	Weight    Price             `json:"variantWeight"`
}

// ProductDetail is the full product record including its variants
type ProductDetail struct {
	ProductSummary
	Variants []Variant `json:"variants"`
}

// Inventory is the stock reported for a product or variant
type Inventory struct {
	Quantity   int
	Warehouses []WarehouseStock
}

// WarehouseStock is stock held in one warehouse
type WarehouseStock struct {
	Area       string         `json:"areaEn"`
	Quantity   domain.FlexInt `json:"quantity"`
	StorageNum domain.FlexInt `json:"storageNum"`
}

func (w WarehouseStock) total() int {
	if w.Quantity > 0 {
		return int(w.Quantity)
	}
	return int(w.StorageNum)
}

// OrderProduct is one line of an order placement
type OrderProduct struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// OrderAddress is the shipping address sent with an order
type OrderAddress struct {
	Country     string `json:"country"`
	State       string `json:"state"`
	City        string `json:"city"`
	ZipCode     string `json:"zipCode"`
	Address     string `json:"address"`
	Address2    string `json:"address2"`
	ContactName string `json:"contactName"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// AddressFrom converts a local shipping address
func AddressFrom(a domain.ShippingAddress) OrderAddress {
	return OrderAddress{
		Country:     a.Country,
		State:       a.State,
		City:        a.City,
		ZipCode:     a.ZipCode,
		Address:     a.Address,
		Address2:    a.Address2,
		ContactName: a.ContactName,
		Phone:       a.Phone,
		Email:       a.Email,
	}
}

// CreateOrderRequest places an order with the supplier
type CreateOrderRequest struct {
	OrderNumber     string         `json:"orderNumber"`
	Products        []OrderProduct `json:"products"`
	ShippingAddress OrderAddress   `json:"shippingAddress"`
	Remark          string         `json:"remark,omitempty"`
	LogisticName    string         `json:"logisticName,omitempty"`
}

// CreateOrderResult carries the supplier's identifiers for a new order
type CreateOrderResult struct {
	OrderID  domain.FlexString `json:"orderId"`
	OrderNum domain.FlexString `json:"orderNum"`
}

// OrderDetail is the supplier's view of an order. Field names differ
// between endpoints, so both spellings are accepted.
type OrderDetail struct {
	OrderID        string
	OrderNum       string
	Status         string
	TrackingNumber string
	ShippingMethod string
}

func (d *OrderDetail) UnmarshalJSON(b []byte) error {
	var aux struct {
		OrderID        domain.FlexString `json:"orderId"`
		OrderNum       domain.FlexString `json:"orderNum"`
		OrderNumber    domain.FlexString `json:"orderNumber"`
		Status         string            `json:"status"`
		OrderStatus    string            `json:"orderStatus"`
		TrackingNumber domain.FlexString `json:"trackingNumber"`
		TrackNumber    domain.FlexString `json:"trackNumber"`
		ShippingMethod string            `json:"shippingMethod"`
		LogisticName   string            `json:"logisticName"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.OrderID = string(aux.OrderID)
	d.OrderNum = firstNonEmpty(string(aux.OrderNum), string(aux.OrderNumber))
	d.Status = firstNonEmpty(aux.Status, aux.OrderStatus)
	d.TrackingNumber = firstNonEmpty(string(aux.TrackingNumber), string(aux.TrackNumber))
	d.ShippingMethod = firstNonEmpty(aux.ShippingMethod, aux.LogisticName)
	return nil
}

// Update converts the detail into a domain status update
func (d OrderDetail) Update() domain.RemoteOrderUpdate {
	return domain.RemoteOrderUpdate{
		Status:         d.Status,
		TrackingNumber: d.TrackingNumber,
		ShippingMethod: d.ShippingMethod,
	}
}

// OrderPage is a page of the supplier's order list
type OrderPage struct {
	PageNum  domain.FlexInt `json:"pageNum"`
	PageSize domain.FlexInt `json:"pageSize"`
	Total    domain.FlexInt `json:"total"`
	List     []OrderDetail  `json:"list"`
}

// FreightProduct is one line of a freight quote request
type FreightProduct struct {
	VariantID string `json:"vid"`
	Quantity  int    `json:"quantity"`
}

// ShippingMethod is a quoted shipping option
type ShippingMethod struct {
	Name  string `json:"logisticName"`
	Price Price  `json:"logisticPrice"`
	Aging string `json:"logisticAging"`
}

// Logistics is the supplier's tracking record for an order. Raw keeps the
// full record for the logistics snapshot.
type Logistics struct {
	TrackingNumber string
	ShippingMethod string
	Status         string
	Raw            json.RawMessage
}

// Update converts the record into a domain logistics update
func (l Logistics) Update() domain.LogisticsUpdate {
	return domain.LogisticsUpdate{
		TrackingNumber: l.TrackingNumber,
		ShippingMethod: l.ShippingMethod,
		Snapshot:       l.Raw,
	}
}

// Category is a top-level catalog category
type Category struct {
	ID       domain.FlexString `json:"categoryFirstId"`
	Name     string            `json:"categoryFirstName"`
	Children []SubCategory     `json:"categoryFirstList"`
}

// SubCategory is a second-level catalog category
type SubCategory struct {
	ID   domain.FlexString `json:"categorySecondId"`
	Name string            `json:"categorySecondName"`
}

// ListProducts returns one page of the catalog
func (c *Client) ListProducts(ctx context.Context, params ProductListParams) (*ProductPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	q := url.Values{}
	q.Set("pageNum", strconv.Itoa(params.Page))
	q.Set("pageSize", strconv.Itoa(params.PageSize))
	if params.CategoryID != "" {
		q.Set("categoryId", params.CategoryID)
	}

	var page ProductPage
	if err := c.do(ctx, "product.list", http.MethodGet, "/product/list", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct returns the detail record for pid
func (c *Client) GetProduct(ctx context.Context, pid string) (*ProductDetail, error) {
	var detail ProductDetail
	if err := c.do(ctx, "product.query", http.MethodGet, "/product/query", url.Values{"pid": {pid}}, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetProductVariants returns the variants of pid
func (c *Client) GetProductVariants(ctx context.Context, pid string) ([]Variant, error) {
	var variants []Variant
	if err := c.do(ctx, "product.variants", http.MethodGet, "/product/variant/query", url.Values{"pid": {pid}}, nil, &variants); err != nil {
		return nil, err
	}
	return variants, nil
}

// GetInventory returns stock for pid, or for one variant when vid is set.
// Envelope errors are marked transient since stock reads are safe to repeat.
func (c *Client) GetInventory(ctx context.Context, pid, vid string) (*Inventory, error) {
	q := url.Values{"pid": {pid}}
	if vid != "" {
		q.Set("vid", vid)
	}

	var raw json.RawMessage
	if err := c.do(ctx, "product.inventory", http.MethodGet, "/product/inventory/query", q, nil, &raw); err != nil {
		if apiErr, ok := err.(*errors.APIError); ok {
			apiErr.Transient = true
		}
		return nil, err
	}
	return decodeInventory(raw)
}

func decodeInventory(raw json.RawMessage) (*Inventory, error) {
	raw = bytes.TrimSpace(raw)
	inv := &Inventory{}
	if len(raw) == 0 || string(raw) == "null" {
		return inv, nil
	}

	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &inv.Warehouses); err != nil {
			return nil, &errors.APIError{Code: codeSuccess, Message: "malformed inventory data: " + err.Error()}
		}
		for _, w := range inv.Warehouses {
			inv.Quantity += w.total()
		}
		return inv, nil
	}

	var single WarehouseStock
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, &errors.APIError{Code: codeSuccess, Message: "malformed inventory data: " + err.Error()}
	}
	inv.Quantity = single.total()
	return inv, nil
}

// CreateOrder places an order and returns the supplier identifiers
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	var result CreateOrderResult
	if err := c.do(ctx, "order.create", http.MethodPost, "/shopping/order/createOrder", nil, req, &result); err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		return nil, &errors.APIError{Code: codeSuccess, Message: "order accepted without an order id"}
	}
	return &result, nil
}

// GetOrder returns the supplier's current view of orderID
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	var detail OrderDetail
	if err := c.do(ctx, "order.query", http.MethodGet, "/shopping/order/query", url.Values{"orderId": {orderID}}, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

const (
	findOrderPages    = 5
	findOrderPageSize = 50
)

// ListOrders returns one page of supplier orders
func (c *Client) ListOrders(ctx context.Context, page, pageSize int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	q := url.Values{}
	q.Set("pageNum", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var result OrderPage
	if err := c.do(ctx, "order.list", http.MethodGet, "/shopping/order/list", q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindOrderByNumber searches the most recent supplier orders for one placed
// as orderNumber. It returns nil when there is none.
func (c *Client) FindOrderByNumber(ctx context.Context, orderNumber string) (*OrderDetail, error) {
	for page := 1; page <= findOrderPages; page++ {
		result, err := c.ListOrders(ctx, page, findOrderPageSize)
		if err != nil {
			return nil, err
		}
		for i := range result.List {
			if result.List[i].OrderNum == orderNumber {
				return &result.List[i], nil
			}
		}
		if len(result.List) < findOrderPageSize || page*findOrderPageSize >= int(result.Total) {
			break
		}
	}
	return nil, nil
}

// GetShippingMethods quotes shipping options for products to countryCode
func (c *Client) GetShippingMethods(ctx context.Context, products []FreightProduct, countryCode string) ([]ShippingMethod, error) {
	body := map[string]interface{}{
		"products":    products,
		"countryCode": countryCode,
	}

	var methods []ShippingMethod
	if err := c.do(ctx, "logistic.freight", http.MethodPost, "/logistic/freightCalculate", nil, body, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// QueryLogistics returns the tracking record for orderID. The supplier
// returns either one record or a list; the first record is used.
func (c *Client) QueryLogistics(ctx context.Context, orderID string) (*Logistics, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "logistic.track", http.MethodGet, "/logistic/trackQuery", url.Values{"orderId": {orderID}}, nil, &raw); err != nil {
		return nil, err
	}
	return decodeLogistics(raw)
}

func decodeLogistics(raw json.RawMessage) (*Logistics, error) {
	raw = bytes.TrimSpace(raw)
	l := &Logistics{Raw: raw}
	if len(raw) == 0 || string(raw) == "null" {
		l.Raw = nil
		return l, nil
	}

	record := raw
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, &errors.APIError{Code: codeSuccess, Message: "malformed logistics data: " + err.Error()}
		}
		if len(list) == 0 {
			return l, nil
		}
		record = list[0]
	}

	var aux struct {
		TrackingNumber domain.FlexString `json:"trackingNumber"`
		TrackNumber    domain.FlexString `json:"trackNumber"`
		ShippingMethod string            `json:"shippingMethod"`
		LogisticName   string            `json:"logisticName"`
		TrackingStatus string            `json:"trackingStatus"`
	}
	if err := json.Unmarshal(record, &aux); err != nil {
		return nil, &errors.APIError{Code: codeSuccess, Message: "malformed logistics data: " + err.Error()}
	}
	l.TrackingNumber = firstNonEmpty(string(aux.TrackingNumber), string(aux.TrackNumber))
	l.ShippingMethod = firstNonEmpty(aux.ShippingMethod, aux.LogisticName)
	l.Status = aux.TrackingStatus
	return l, nil
}

// ListCategories returns the catalog category tree
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, "product.categories", http.MethodGet, "/product/categoryList", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
