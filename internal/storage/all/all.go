// Package all registers every storage backend with the factory. Binaries
// blank-import it so the config alone decides which backend runs.
package all

import (
	_ "xmlcsv/internal/storage/mssql"
	_ "xmlcsv/internal/storage/postgres"
	_ "xmlcsv/internal/storage/sqlite"
)
