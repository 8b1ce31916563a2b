package api

// FormData is the typed shape of a captured survey payload. The sync core
// treats payloads as opaque JSON; this type exists only at the API boundary,
// where internal camelCase field names are translated to the server's
// snake_case wire fields.
type FormData struct {
	ConsentAgreed bool `json:"consentAgreed"`

	BeneficiaryName              string   `json:"beneficiaryName"`
	RespondentName               string   `json:"respondentName"`
	RelationshipToBeneficiary    string   `json:"relationshipToBeneficiary"`
	RelationshipSpecify          string   `json:"relationshipSpecify"`
	Birthdate                    string   `json:"birthdate"`
	Age                          int      `json:"age"`
	BeneficiaryClassification    []string `json:"beneficiaryClassification"`
	HouseholdIDNo                string   `json:"householdIdNo"`
	Sex                          string   `json:"sex"`
	DemographicClassification    []string `json:"demographicClassification"`
	IPSpecify                    string   `json:"ipSpecify"`
	HighestEducationalAttainment string   `json:"highestEducationalAttainment"`
	EducationalAttainmentSpecify string   `json:"educationalAttainmentSpecify"`

	Province         string   `json:"province"`
	District         string   `json:"district"`
	Municipality     string   `json:"municipality"`
	Barangay         string   `json:"barangay"`
	SitioPurokStreet string   `json:"sitioPurokStreet"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Altitude         *float64 `json:"altitude"`
	Accuracy         *float64 `json:"accuracy"`

	UtilizationType string  `json:"utilizationType"`
	AmountReceived  float64 `json:"amountReceived"`
	DateReceived    string  `json:"dateReceived"`

	ExpenseFood             float64  `json:"expenseFood"`
	ExpenseEducational      float64  `json:"expenseEducational"`
	ExpenseHouseRental      float64  `json:"expenseHouseRental"`
	LivelihoodTypes         []string `json:"livelihoodTypes"`
	LivelihoodSpecify       string   `json:"livelihoodSpecify"`
	ExpenseLivelihood       float64  `json:"expenseLivelihood"`
	ExpenseMedical          float64  `json:"expenseMedical"`
	ExpenseNonFoodItems     float64  `json:"expenseNonFoodItems"`
	ExpenseUtilities        float64  `json:"expenseUtilities"`
	ExpenseShelterMaterials float64  `json:"expenseShelterMaterials"`
	ExpenseTransportation   float64  `json:"expenseTransportation"`
	ExpenseOthersSpecify    string   `json:"expenseOthersSpecify"`
	ExpenseOthers           float64  `json:"expenseOthers"`
	ReasonNotFullyUtilized  string   `json:"reasonNotFullyUtilized"`

	InterviewedBy   string `json:"interviewedBy"`
	Position        string `json:"position"`
	SurveyModality  string `json:"surveyModality"`
	ModalitySpecify string `json:"modalitySpecify"`
}

// TotalUtilized sums the reported expense breakdown. Collaborators use this
// accessor instead of reaching into the payload structure.
func (f FormData) TotalUtilized() float64 {
	return f.ExpenseFood +
		f.ExpenseEducational +
		f.ExpenseHouseRental +
		f.ExpenseLivelihood +
		f.ExpenseMedical +
		f.ExpenseNonFoodItems +
		f.ExpenseUtilities +
		f.ExpenseShelterMaterials +
		f.ExpenseTransportation +
		f.ExpenseOthers
}

// wireSurvey is the server-side representation of a survey payload.
// Optional free-text fields serialize as null when empty, matching the
// server contract.
type wireSurvey struct {
	ConsentAgreed bool `json:"consent_agreed"`

	BeneficiaryName              string   `json:"beneficiary_name"`
	RespondentName               string   `json:"respondent_name"`
	RelationshipToBeneficiary    string   `json:"relationship_to_beneficiary"`
	RelationshipSpecify          *string  `json:"relationship_specify"`
	Birthdate                    string   `json:"birthdate"`
	Age                          int      `json:"age"`
	BeneficiaryClassification    []string `json:"beneficiary_classification"`
	HouseholdIDNo                *string  `json:"household_id_no"`
	Sex                          string   `json:"sex"`
	DemographicClassification    []string `json:"demographic_classification"`
	IPSpecify                    *string  `json:"ip_specify"`
	HighestEducationalAttainment string   `json:"highest_educational_attainment"`
	EducationalAttainmentSpecify *string  `json:"educational_attainment_specify"`

	Province         string   `json:"province"`
	District         string   `json:"district"`
	Municipality     string   `json:"municipality"`
	Barangay         string   `json:"barangay"`
	SitioPurokStreet *string  `json:"sitio_purok_street"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Altitude         *float64 `json:"altitude"`
	Accuracy         *float64 `json:"accuracy"`

	UtilizationType string  `json:"utilization_type"`
	AmountReceived  float64 `json:"amount_received"`
	DateReceived    string  `json:"date_received"`

	ExpenseFood             float64   `json:"expense_food"`
	ExpenseEducational      float64   `json:"expense_educational"`
	ExpenseHouseRental      float64   `json:"expense_house_rental"`
	LivelihoodTypes         *[]string `json:"livelihood_types"`
	LivelihoodSpecify       *string   `json:"livelihood_specify"`
	ExpenseLivelihood       float64   `json:"expense_livelihood"`
	ExpenseMedical          float64   `json:"expense_medical"`
	ExpenseNonFoodItems     float64   `json:"expense_non_food_items"`
	ExpenseUtilities        float64   `json:"expense_utilities"`
	ExpenseShelterMaterials float64   `json:"expense_shelter_materials"`
	ExpenseTransportation   float64   `json:"expense_transportation"`
	ExpenseOthersSpecify    *string   `json:"expense_others_specify"`
	ExpenseOthers           float64   `json:"expense_others"`
	ReasonNotFullyUtilized  *string   `json:"reason_not_fully_utilized"`

	InterviewedBy   string  `json:"interviewed_by"`
	Position        string  `json:"position"`
	SurveyModality  string  `json:"survey_modality"`
	ModalitySpecify *string `json:"modality_specify"`
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func toWire(form FormData) wireSurvey {
	var livelihoodTypes *[]string
	if len(form.LivelihoodTypes) > 0 {
		livelihoodTypes = &form.LivelihoodTypes
	}

	return wireSurvey{
		ConsentAgreed:                form.ConsentAgreed,
		BeneficiaryName:              form.BeneficiaryName,
		RespondentName:               form.RespondentName,
		RelationshipToBeneficiary:    form.RelationshipToBeneficiary,
		RelationshipSpecify:          optionalString(form.RelationshipSpecify),
		Birthdate:                    form.Birthdate,
		Age:                          form.Age,
		BeneficiaryClassification:    form.BeneficiaryClassification,
		HouseholdIDNo:                optionalString(form.HouseholdIDNo),
		Sex:                          form.Sex,
		DemographicClassification:    form.DemographicClassification,
		IPSpecify:                    optionalString(form.IPSpecify),
		HighestEducationalAttainment: form.HighestEducationalAttainment,
		EducationalAttainmentSpecify: optionalString(form.EducationalAttainmentSpecify),
		Province:                     form.Province,
		District:                     form.District,
		Municipality:                 form.Municipality,
		Barangay:                     form.Barangay,
		SitioPurokStreet:             optionalString(form.SitioPurokStreet),
		Latitude:                     form.Latitude,
		Longitude:                    form.Longitude,
		Altitude:                     form.Altitude,
		Accuracy:                     form.Accuracy,
		UtilizationType:              form.UtilizationType,
		AmountReceived:               form.AmountReceived,
		DateReceived:                 form.DateReceived,
		ExpenseFood:                  form.ExpenseFood,
		ExpenseEducational:           form.ExpenseEducational,
		ExpenseHouseRental:           form.ExpenseHouseRental,
		LivelihoodTypes:              livelihoodTypes,
		LivelihoodSpecify:            optionalString(form.LivelihoodSpecify),
		ExpenseLivelihood:            form.ExpenseLivelihood,
		ExpenseMedical:               form.ExpenseMedical,
		ExpenseNonFoodItems:          form.ExpenseNonFoodItems,
		ExpenseUtilities:             form.ExpenseUtilities,
		ExpenseShelterMaterials:      form.ExpenseShelterMaterials,
		ExpenseTransportation:        form.ExpenseTransportation,
		ExpenseOthersSpecify:         optionalString(form.ExpenseOthersSpecify),
		ExpenseOthers:                form.ExpenseOthers,
		ReasonNotFullyUtilized:       optionalString(form.ReasonNotFullyUtilized),
		InterviewedBy:                form.InterviewedBy,
		Position:                     form.Position,
		SurveyModality:               form.SurveyModality,
		ModalitySpecify:              optionalString(form.ModalitySpecify),
	}
}

func fromWire(wire wireSurvey) FormData {
	var livelihoodTypes []string
	if wire.LivelihoodTypes != nil {
		livelihoodTypes = *wire.LivelihoodTypes
	}

	return FormData{
		ConsentAgreed:                wire.ConsentAgreed,
		BeneficiaryName:              wire.BeneficiaryName,
		RespondentName:               wire.RespondentName,
		RelationshipToBeneficiary:    wire.RelationshipToBeneficiary,
		RelationshipSpecify:          stringOrEmpty(wire.RelationshipSpecify),
		Birthdate:                    wire.Birthdate,
		Age:                          wire.Age,
		BeneficiaryClassification:    wire.BeneficiaryClassification,
		HouseholdIDNo:                stringOrEmpty(wire.HouseholdIDNo),
		Sex:                          wire.Sex,
		DemographicClassification:    wire.DemographicClassification,
		IPSpecify:                    stringOrEmpty(wire.IPSpecify),
		HighestEducationalAttainment: wire.HighestEducationalAttainment,
		EducationalAttainmentSpecify: stringOrEmpty(wire.EducationalAttainmentSpecify),
		Province:                     wire.Province,
		District:                     wire.District,
		Municipality:                 wire.Municipality,
		Barangay:                     wire.Barangay,
		SitioPurokStreet:             stringOrEmpty(wire.SitioPurokStreet),
		Latitude:                     wire.Latitude,
		Longitude:                    wire.Longitude,
		Altitude:                     wire.Altitude,
		Accuracy:                     wire.Accuracy,
		UtilizationType:              wire.UtilizationType,
		AmountReceived:               wire.AmountReceived,
		DateReceived:                 wire.DateReceived,
		ExpenseFood:                  wire.ExpenseFood,
		ExpenseEducational:           wire.ExpenseEducational,
		ExpenseHouseRental:           wire.ExpenseHouseRental,
		LivelihoodTypes:              livelihoodTypes,
		LivelihoodSpecify:            stringOrEmpty(wire.LivelihoodSpecify),
		ExpenseLivelihood:            wire.ExpenseLivelihood,
		ExpenseMedical:               wire.ExpenseMedical,
		ExpenseNonFoodItems:          wire.ExpenseNonFoodItems,
		ExpenseUtilities:             wire.ExpenseUtilities,
		ExpenseShelterMaterials:      wire.ExpenseShelterMaterials,
		ExpenseTransportation:        wire.ExpenseTransportation,
		ExpenseOthersSpecify:         stringOrEmpty(wire.ExpenseOthersSpecify),
		ExpenseOthers:                wire.ExpenseOthers,
		ReasonNotFullyUtilized:       stringOrEmpty(wire.ReasonNotFullyUtilized),
		InterviewedBy:                wire.InterviewedBy,
		Position:                     wire.Position,
		SurveyModality:               wire.SurveyModality,
		ModalitySpecify:              stringOrEmpty(wire.ModalitySpecify),
	}
}

// RemoteSurvey is one server-authoritative record returned by the listing
// endpoint, translated back to the client's internal representation.
type RemoteSurvey struct {
	ServerID    int64
	ClientUUID  string
	PayloadJSON string
	CreatedAt   string
	UpdatedAt   string
}

// SurveyPage is one page of the remote survey listing.
type SurveyPage struct {
	Surveys []RemoteSurvey
	HasMore bool
}

// Incident is a remote incident descriptor.
type Incident struct {
	ID          int64
	Name        string
	Type        string
	StartsAt    *string
	EndsAt      *string
	IsActive    bool
	Description string
}

type wireIncident struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	StartsAt    *string `json:"starts_at"`
	EndsAt      *string `json:"ends_at"`
	IsActive    bool    `json:"is_active"`
	Description *string `json:"description"`
}

func mapIncident(wire wireIncident) Incident {
	return Incident{
		ID:          wire.ID,
		Name:        wire.Name,
		Type:        wire.Type,
		StartsAt:    wire.StartsAt,
		EndsAt:      wire.EndsAt,
		IsActive:    wire.IsActive,
		Description: stringOrEmpty(wire.Description),
	}
}
