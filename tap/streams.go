package tap

const (
	MerchantsStream = "merchants"
	OrdersStream    = "orders"
)

// merchantChild declares a stream read once per synced merchant.
func merchantChild(name string, resource string, primaryKeys []string, expand ...string) StreamDefinition {
	return StreamDefinition{
		Name:           name,
		Path:           "/v3/merchants/{merchant_id}/" + resource,
		PrimaryKeys:    primaryKeys,
		ExpandableKeys: expand,
		Parent:         MerchantsStream,
	}
}

// orderChild declares a stream read once per synced order.
func orderChild(name string, resource string, primaryKeys []string, expand ...string) StreamDefinition {
	return StreamDefinition{
		Name:           name,
		Path:           "/v3/merchants/{merchant_id}/orders/{order_id}/" + resource,
		PrimaryKeys:    primaryKeys,
		ExpandableKeys: expand,
		Parent:         OrdersStream,
	}
}

var (
	byID           = []string{"id"}
	byIDInMerchant = []string{"id", "merchant_id"}
	byMerchant     = []string{"merchant_id"}
)

// CloverStreams returns the definitions of every Clover stream, parents first.
func CloverStreams() []StreamDefinition {
	payments := merchantChild("payments", "payments", byIDInMerchant,
		"tender", "germanInfo", "cardTransaction", "dccInfo", "transactionInfo",
		"externalReferenceId", "oceanGatewayInfo", "appTracking", "order")
	payments.ReplicationKey = "modifiedTime"

	orders := merchantChild(OrdersStream, "orders", byID, "employee", "orderType", "serviceCharge")
	orders.ChildContext = []ContextField{
		{Key: "merchant_id"},
		{Key: "order_id", RecordField: "id"},
	}

	return []StreamDefinition{
		{
			Name:        MerchantsStream,
			Path:        "/v3/merchants/{merchant_id}",
			PrimaryKeys: byID,
			ExpandableKeys: []string{
				"bankProcessing", "merchantBoarding", "merchantL3Prerequisite", "deviceBoarding",
				"hierarchy", "address", "owner", "gateway", "properties", "openingHours",
				"partnerApp", "selfBoardingApplication", "equipmentSummary",
			},
			ChildContext: []ContextField{{Key: "merchant_id", RecordField: "id"}},
		},
		merchantChild("customers", "customers", byIDInMerchant,
			"addresses", "emailAddresses", "phoneNumbers", "metadata"),
		merchantChild("employees", "employees", byIDInMerchant),
		merchantChild("employee_shifts", "shifts", []string{"id", "employee_id", "merchant_id"},
			"employee", "overrideInEmployee", "overrideOutEmployee"),
		merchantChild("cash_events", "cash_events", byID, "employee", "device"),
		merchantChild("inventory_items", "items", byID, "itemStock"),
		merchantChild("inventory_categories", "categories", byID),
		merchantChild("inventory_discounts", "discounts", byIDInMerchant),
		merchantChild("inventory_modifier_groups", "modifier_groups", byID),
		merchantChild("inventory_modifiers", "modifiers", byIDInMerchant, "modifierGroup"),
		merchantChild("inventory_tax_rates", "tax_rates", byID),
		merchantChild("inventory_tags", "tags", byID),
		merchantChild("inventory_item_groups", "item_groups", byID),
		merchantChild("inventory_attributes", "attributes", byID),
		merchantChild("inventory_item_stocks", "item_stocks", []string{"item_id", "merchant_id"}),
		merchantChild("merchant_address", "address", byMerchant),
		merchantChild("merchant_gateways", "gateway", byID),
		merchantChild("merchant_properties", "properties", byMerchant),
		merchantChild("merchant_default_service_charge", "default_service_charge", byIDInMerchant),
		merchantChild("merchant_roles", "roles", byID),
		merchantChild("merchant_tenders", "tenders", byID),
		merchantChild("merchant_devices", "devices", byID),
		merchantChild("merchant_order_types", "order_types", byID),
		merchantChild("merchant_opening_hours", "opening_hours", byID),
		merchantChild("merchant_tip_suggestions", "tip_suggestions", byID),
		orders,
		orderChild("order_line_items", "line_items", byID, "employee", "orderType"),
		orderChild("order_discounts", "discounts", byIDInMerchant),
		orderChild("order_voided_line_items", "voided_line_items", byID),
		payments,
		merchantChild("refunds", "refunds", byIDInMerchant,
			"payment", "germanInfo", "appTracking", "employee", "overrideMerchantTender",
			"serviceCharge", "lineItems", "transactionInfo", "oceanGatewayInfo"),
	}
}
