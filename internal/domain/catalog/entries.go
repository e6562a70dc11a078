package catalog

func verification(sku, name string, major int64) Entry {
	return Entry{Key: Verification{Variant: sku}, Name: name, Price: Major(USD, major), Active: true}
}

func enrollment(sku, name string, c Currency, major int64, active bool) Entry {
	return Entry{Key: Enrollment{Variant: sku}, Name: name, Price: Major(c, major), Active: active}
}

func defaultEntries() []Entry {
	return []Entry{
		verification("Y1", "Verification PIN - 1 Year", 500),
		verification("Y2", "Verification PIN - 2 Years", 900),
		verification("Y3", "Verification PIN - 3 Years", 1200),

		// Citizens, standard tier.
		enrollment("CU", "Regular Personal Information Update", GHS, 60, true),
		enrollment("CB", "Regular DOB Update", GHS, 60, true),
		enrollment("CP", "Regular Picture Update", GHS, 60, true),
		enrollment("CD", "Regular Nationality Update", GHS, 70, true),
		enrollment("CR", "Regular Replacement", GHS, 125, true),
		enrollment("CN", "Regular Renewal", GHS, 60, true),

		// Citizens, premium tier.
		enrollment("RU", "Premium Secondary Data Update", GHS, 310, true),
		enrollment("PU", "Premium Personal Information Update", GHS, 355, true),
		enrollment("PB", "Premium DOB Update", GHS, 355, true),
		enrollment("PP", "Premium Picture Update", GHS, 355, true),
		enrollment("PD", "Premium Nationality Update", GHS, 365, true),
		enrollment("PR", "Premium Replacement", GHS, 420, true),
		enrollment("PN", "Premium Renewal", GHS, 355, true),

		enrollment("FU", "Non-citizen Personal Information Update", USD, 60, true),
		enrollment("FB", "Non-citizen DOB Update", USD, 60, true),
		enrollment("CF", "Non-citizen Nationality Update", USD, 120, true),
		enrollment("FR", "Non-citizen Replacement", USD, 60, true),
		enrollment("RO", "Non-citizen 1-Year Renewal", USD, 60, true),
		enrollment("RW", "Non-citizen 2-Year Renewal", USD, 120, true),
		enrollment("RH", "Non-citizen 3-Year Renewal", USD, 180, true),
		enrollment("RF", "Non-citizen 5-Year Renewal", USD, 300, true),

		enrollment("ZU", "Refugee Personal Information Update", USD, 15, true),
		enrollment("ZB", "Refugee DOB Update", USD, 15, true),
		enrollment("ZD", "Refugee Nationality Update", USD, 15, true),
		enrollment("ZP", "Refugee Replacement", USD, 15, true),
		enrollment("ZR", "Refugee 5-Year Renewal", USD, 15, true),

		enrollment("CFS", "Citizen First Issuance - Standard (Free)", GHS, 0, true),
		enrollment("CFP", "Citizen First Issuance - Premium", GHS, 0, true),

		// First issuance for non-citizens and refugees is handled in person.
		enrollment("NFI", "Non-citizen First Issuance", USD, 0, false),
		enrollment("RFI", "Refugee First Issuance", USD, 0, false),
	}
}
