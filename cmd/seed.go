package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/store"
)

var (
	seedCases int
	seedValue int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo source tables into the database",
	Long: `Seed the five source tables (notas_informativas, detenidos, vehiculos,
incautaciones, notificados) with generated demo cases. Existing tables with
those names are replaced. Useful for trying the dashboard and API locally.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedCases, "cases", 40, "Number of demo cases")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 1, "Random seed; the same seed produces the same tables")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	logger = logger.Named("seed")
	defer logger.Sync()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	logger.Info("seeding demo data", zap.Int("cases", seedCases))
	for _, t := range demoTables(seedCases, seedValue, time.Now()) {
		if err := db.DropTable(ctx, t.Name); err != nil {
			return err
		}
		n, err := db.AppendRows(ctx, t.Name, t.Data[0], t.Data[1:])
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", t.Name, err)
		}
		logger.Info("table seeded", zap.String("table", t.Name), zap.Int("rows", n))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d demo cases.\n", seedCases)
	return nil
}

var demoPlaces = []struct {
	province, region string
	localities       []string
	lat, lng         float64
}{
	{"Santiago", "Norte", []string{"Tamboril", "Licey al Medio", "Jánico"}, 19.45, -70.69},
	{"La Vega", "Norte", []string{"Jarabacoa", "Constanza"}, 19.22, -70.53},
	{"Puerto Plata", "Norte", []string{"Sosúa", "Imbert"}, 19.79, -70.69},
	{"Azua", "Sur", []string{"Padre Las Casas", "Las Charcas"}, 18.45, -70.73},
	{"Barahona", "Sur", []string{"Paraíso", "Enriquillo"}, 18.21, -71.10},
	{"Pedernales", "Sur", []string{"Oviedo"}, 18.04, -71.74},
	{"La Altagracia", "Este", []string{"Higüey", "Bávaro"}, 18.62, -68.71},
	{"El Seibo", "Este", []string{"Miches"}, 18.76, -69.04},
	{"Santo Domingo", "Metropolitana", []string{"Boca Chica", "Los Alcarrizos"}, 18.50, -69.86},
}

var (
	demoTopics = []string{
		"Recursos Forestales", "Áreas Protegidas", "Suelos y Aguas", "Gestión Ambiental", "Costeros y Marinos",
	}
	demoActivities    = []string{"Operativo", "Patrulla", "Patrullaje preventivo", "Operativo conjunto"}
	demoNames         = []string{"Juan Pérez", "María Gómez", "Pedro Santos", "Luis Martínez", "Ana Rodríguez", "Jean Baptiste"}
	demoNationalities = []string{"Dominicana", "Dominicana", "Dominicana", "Haitiana", "Venezolana"}
	demoVehicles      = []string{"Camión", "Motocicleta", "Camioneta", "Carreta"}
	demoSeizures      = []string{"sacos de carbón", "pies de madera", "metros cúbicos de arena", "aves silvestres", "trasmallos"}
)

// demoTables generates the source tables for n cases dated in the 90 days before now.
func demoTables(n int, seed int64, now time.Time) []model.Table {
	rng := rand.New(rand.NewSource(seed))
	pick := func(xs []string) string { return xs[rng.Intn(len(xs))] }

	notas := [][]string{{"numerocaso", "fecha", "hora", "provincia", "localidad", "region", "tipoactividad", "areatematica", "resultado", "procuraduria", "coordenadas"}}
	detenidos := [][]string{{"numerocaso", "nombre", "nacionalidad"}}
	vehiculos := [][]string{{"numerocaso", "tipovehiculo", "placa"}}
	incautaciones := [][]string{{"numerocaso", "tipoincautacion", "cantidad"}}
	notificados := [][]string{{"numerocaso", "nombre"}}

	for i := 1; i <= n; i++ {
		num := fmt.Sprintf("SEN-%04d", i)
		place := demoPlaces[rng.Intn(len(demoPlaces))]
		day := now.AddDate(0, 0, -rng.Intn(90))
		procuraduria := "No"
		if rng.Intn(4) == 0 {
			procuraduria = "Sí"
		}
		notas = append(notas, []string{
			num,
			day.Format("2006-01-02"),
			fmt.Sprintf("%02d:%02d", 6+rng.Intn(14), rng.Intn(60)),
			place.province,
			pick(place.localities),
			place.region,
			pick(demoActivities),
			pick(demoTopics),
			"Se levantó acta de la intervención",
			procuraduria,
			fmt.Sprintf("%.5f,%.5f", place.lat+rng.Float64()*0.1, place.lng+rng.Float64()*0.1),
		})

		for j := rng.Intn(3); j > 0; j-- {
			detenidos = append(detenidos, []string{num, pick(demoNames), pick(demoNationalities)})
		}
		for j := rng.Intn(2); j > 0; j-- {
			vehiculos = append(vehiculos, []string{num, pick(demoVehicles), fmt.Sprintf("L%06d", rng.Intn(1000000))})
		}
		for j := rng.Intn(3); j > 0; j-- {
			incautaciones = append(incautaciones, []string{num, pick(demoSeizures), fmt.Sprint(1 + rng.Intn(40))})
		}
		if rng.Intn(3) == 0 {
			notificados = append(notificados, []string{num, pick(demoNames)})
		}
	}

	return []model.Table{
		{Name: "notas_informativas", Data: notas},
		{Name: "detenidos", Data: detenidos},
		{Name: "vehiculos", Data: vehiculos},
		{Name: "incautaciones", Data: incautaciones},
		{Name: "notificados", Data: notificados},
	}
}
