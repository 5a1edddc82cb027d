// internal/resolver/aliases.go
package resolver

import "emissions-gateway/internal/models"

// referenceEntity is one row of the read-only alias reference data loaded at
// startup. Every canonical entity carries exactly one ISO3 code (countries);
// aliases map free-text variants onto it.
type referenceEntity struct {
	Canonical string
	ISO3      string
	Level     models.EntityLevel
	Aliases   []string
}

var referenceEntities = []referenceEntity{
	// Countries
	{"United States of America", "USA", models.LevelCountry, []string{"USA", "US", "United States", "America", "U.S.", "U.S.A."}},
	{"Germany", "DEU", models.LevelCountry, []string{"DE", "DEU", "Deutschland", "Federal Republic of Germany"}},
	{"United Kingdom", "GBR", models.LevelCountry, []string{"UK", "GBR", "Great Britain", "Britain", "England"}},
	{"France", "FRA", models.LevelCountry, []string{"FR", "FRA", "French Republic"}},
	{"China", "CHN", models.LevelCountry, []string{"CN", "CHN", "People's Republic of China", "PRC", "Mainland China"}},
	{"India", "IND", models.LevelCountry, []string{"IN", "IND", "Republic of India", "Bharat"}},
	{"Japan", "JPN", models.LevelCountry, []string{"JP", "JPN", "Nippon"}},
	{"Brazil", "BRA", models.LevelCountry, []string{"BR", "BRA", "Brasil"}},
	{"Canada", "CAN", models.LevelCountry, []string{"CA", "CAN"}},
	{"Australia", "AUS", models.LevelCountry, []string{"AU", "AUS"}},
	{"Russia", "RUS", models.LevelCountry, []string{"RU", "RUS", "Russian Federation"}},
	{"Mexico", "MEX", models.LevelCountry, []string{"MX", "MEX", "México"}},
	{"Italy", "ITA", models.LevelCountry, []string{"IT", "ITA", "Italia"}},
	{"Spain", "ESP", models.LevelCountry, []string{"ES", "ESP", "España"}},
	{"Netherlands", "NLD", models.LevelCountry, []string{"NL", "NLD", "Holland", "The Netherlands"}},
	{"Poland", "POL", models.LevelCountry, []string{"PL", "POL", "Polska"}},
	{"Sweden", "SWE", models.LevelCountry, []string{"SE", "SWE", "Sverige"}},
	{"Norway", "NOR", models.LevelCountry, []string{"NO", "NOR", "Norge"}},
	{"South Korea", "KOR", models.LevelCountry, []string{"KR", "KOR", "Korea", "Republic of Korea"}},
	{"Indonesia", "IDN", models.LevelCountry, []string{"ID", "IDN"}},
	{"South Africa", "ZAF", models.LevelCountry, []string{"ZA", "ZAF"}},
	{"Nigeria", "NGA", models.LevelCountry, []string{"NG", "NGA"}},
	{"Argentina", "ARG", models.LevelCountry, []string{"AR", "ARG"}},
	{"Turkey", "TUR", models.LevelCountry, []string{"TR", "TUR", "Türkiye", "Turkiye"}},
	{"Saudi Arabia", "SAU", models.LevelCountry, []string{"SA", "SAU", "KSA"}},
	{"Switzerland", "CHE", models.LevelCountry, []string{"CH", "CHE", "Schweiz", "Suisse"}},
	{"Austria", "AUT", models.LevelCountry, []string{"AT", "AUT", "Österreich", "Oesterreich"}},
	{"Denmark", "DNK", models.LevelCountry, []string{"DK", "DNK", "Danmark"}},
	{"Finland", "FIN", models.LevelCountry, []string{"FI", "FIN", "Suomi"}},
	{"Belgium", "BEL", models.LevelCountry, []string{"BE", "BEL", "Belgique", "België"}},
	{"Portugal", "PRT", models.LevelCountry, []string{"PT", "PRT"}},
	{"Czechia", "CZE", models.LevelCountry, []string{"CZ", "CZE", "Czech Republic"}},
	{"Ukraine", "UKR", models.LevelCountry, []string{"UA", "UKR"}},
	{"United Arab Emirates", "ARE", models.LevelCountry, []string{"AE", "ARE", "UAE", "Emirates"}},
	{"Vietnam", "VNM", models.LevelCountry, []string{"VN", "VNM", "Viet Nam"}},
	{"Chile", "CHL", models.LevelCountry, []string{"CL", "CHL"}},

	// States / provinces
	{"California", "", models.LevelState, []string{"Calif.", "Golden State"}},
	{"Texas", "", models.LevelState, []string{"TX", "Tex."}},
	{"New York", "", models.LevelState, []string{"NY", "New York State"}},
	{"Florida", "", models.LevelState, []string{"FL", "Fla."}},
	{"Washington", "", models.LevelState, []string{"WA", "Washington State"}},
	{"Bavaria", "", models.LevelState, []string{"Bayern", "Freistaat Bayern"}},
	{"North Rhine-Westphalia", "", models.LevelState, []string{"NRW", "Nordrhein-Westfalen"}},
	{"Baden-Württemberg", "", models.LevelState, []string{"Baden-Wuerttemberg", "BW"}},
	{"Ontario", "", models.LevelState, []string{"ON"}},
	{"Quebec", "", models.LevelState, []string{"QC", "Québec"}},
	{"New South Wales", "", models.LevelState, []string{"NSW"}},
	{"Maharashtra", "", models.LevelState, nil},
	{"Guangdong", "", models.LevelState, []string{"Kwangtung"}},
	{"São Paulo (state)", "", models.LevelState, []string{"Sao Paulo State", "Estado de São Paulo"}},

	// Cities
	{"Berlin", "", models.LevelCity, nil},
	{"Munich", "", models.LevelCity, []string{"München", "Muenchen"}},
	{"Hamburg", "", models.LevelCity, nil},
	{"New York City", "", models.LevelCity, []string{"NYC", "New York, NY"}},
	{"Los Angeles", "", models.LevelCity, []string{"LA", "L.A."}},
	{"San Francisco", "", models.LevelCity, []string{"SF", "San Fran"}},
	{"London", "", models.LevelCity, nil},
	{"Paris", "", models.LevelCity, nil},
	{"Tokyo", "", models.LevelCity, []string{"Tōkyō"}},
	{"Shanghai", "", models.LevelCity, nil},
	{"Beijing", "", models.LevelCity, []string{"Peking"}},
	{"Mumbai", "", models.LevelCity, []string{"Bombay"}},
	{"São Paulo", "", models.LevelCity, []string{"Sao Paulo"}},
	{"Mexico City", "", models.LevelCity, []string{"Ciudad de México", "CDMX"}},
	{"Sydney", "", models.LevelCity, nil},
	{"Toronto", "", models.LevelCity, nil},
	{"Zurich", "", models.LevelCity, []string{"Zürich"}},
	{"Vienna", "", models.LevelCity, []string{"Wien"}},
	{"Copenhagen", "", models.LevelCity, []string{"København", "Kobenhavn"}},
	{"Istanbul", "", models.LevelCity, nil},
}
