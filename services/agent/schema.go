package agent

import "fmt"

const DefaultTable = "resale_data_2017_to_2025"

const resaleColumns = `| column              | type    | description                                                        |
|---------------------|---------|--------------------------------------------------------------------|
| month               | VARCHAR | Month of the resale registration, formatted YYYY-MM                |
| town                | VARCHAR | HDB town, upper case (e.g. ANG MO KIO, BEDOK, PUNGGOL)             |
| flat_type           | VARCHAR | 1 ROOM, 2 ROOM, 3 ROOM, 4 ROOM, 5 ROOM, EXECUTIVE, MULTI-GENERATION |
| block               | VARCHAR | Block number                                                       |
| street_name         | VARCHAR | Street name, upper case                                            |
| storey_range        | VARCHAR | Storey band such as "04 TO 06"                                     |
| floor_area_sqm      | DOUBLE  | Floor area in square metres                                        |
| flat_model          | VARCHAR | Flat model (Improved, New Generation, Model A, DBSS, ...)          |
| lease_commence_date | INTEGER | Year the 99 year lease started                                     |
| remaining_lease     | VARCHAR | Remaining lease at sale, e.g. "61 years 04 months"                 |
| resale_price        | DOUBLE  | Transacted resale price in SGD                                     |`

// ResaleSchema describes the resale transactions table for the model.
func ResaleSchema(table string) string {
	if table == "" {
		table = DefaultTable
	}
	return fmt.Sprintf("Table %s, one row per HDB resale transaction from January 2017:\n\n%s", table, resaleColumns)
}
