package policy

import "github.com/sells-group/company-profiler/internal/model"

// DefaultSchema is the company profile schema.
func DefaultSchema() model.Schema {
	return model.Schema{Fields: []model.FieldSpec{
		{Key: "registered_legal_name", Required: true, Group: model.GroupCorporate,
			Description: "Full registered legal name of the company"},
		{Key: "country_of_incorporation", Required: true, Group: model.GroupCorporate,
			Description: "Country where the company is incorporated"},
		{Key: "incorporation_date", Group: model.GroupCorporate,
			Description: "Date of incorporation, YYYY-MM-DD when known"},
		{Key: "registered_business_address", Required: true, Group: model.GroupCorporate,
			Description: "Registered or headquarters street address"},
		{Key: "business_description", Required: true, Group: model.GroupCorporate,
			Description: "One or two sentences describing what the company does"},
		{Key: "industry", Group: model.GroupCorporate,
			Description: "Primary industry or sector"},
		{Key: "company_identifiers", Group: model.GroupCorporate,
			Description: "Object of registry identifiers such as CIK, LEI, CRN, CIN, ABN"},
		{Key: "website_url", Group: model.GroupCorporate,
			Description: "Official company website"},
		{Key: "subsidiaries", Group: model.GroupCorporate,
			Description: "List of significant subsidiaries"},
		{Key: "number_of_employees", Required: true, Group: model.GroupFinancial,
			Description: "Most recent reported employee headcount"},
		{Key: "annual_revenue", Required: true, Group: model.GroupFinancial,
			Description: "Most recent annual revenue with currency and fiscal year"},
		{Key: "annual_sales", Group: model.GroupFinancial,
			Description: "Most recent annual sales when reported separately from revenue"},
		{Key: "funding_rounds", Group: model.GroupFinancial,
			Description: "List of funding rounds with date, amount and lead investor"},
		{Key: "key_investors", Group: model.GroupFinancial,
			Description: "List of notable investors"},
		{Key: "valuation", Group: model.GroupFinancial,
			Description: "Latest known valuation or market capitalization"},
		{Key: "executives", Required: true, Group: model.GroupLeadership,
			Description: "List of current executives, each with name and title"},
		{Key: "board_members", Group: model.GroupLeadership,
			Description: "List of current board members"},
	}}
}
