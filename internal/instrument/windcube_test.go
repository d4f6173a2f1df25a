package instrument_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var windows1252 = charmap.Windows1252

const windcubeV1RTD = "HeaderSize=7\r\n" +
	"Localisation=Kassel\r\n" +
	"Altitudes(m)=40\t60\r\n" +
	"ScanAngle(°)=28\r\n" +
	"DirectionOffset(°)=10\r\n" +
	"PitchAngle(°)=0.5\r\n" +
	"RollAngle(°)=-0.25\r\n" +
	"NumberOfAveragedShots=10000\r\n" +
	"Date\tPosition\tTemperature (°C)\tWiper\t40m Vh-\t40m CNR-\t40m RWS-\t60m Vh-\t60m CNR-\t60m RWS-\r\n" +
	"01/06/2015 12:00:00.10\tV\t25.0\tOFF\t1.5\t-10\t0.5\t1.7\t-12\t0.6\r\n" +
	"01/06/2015 12:00:01.20\t0\t25.1\tOFF\t2.5\t-11\t0.5\t2.7\t-13\t0.6\r\n" +
	"01/06/2015 12:00:02.30\t90\t25.2\tON\t3.5\t-12\t0.5\t3.7\t-14\t0.6\r\n" +
	"01/06/2015 12:00:03.40\t180\t25.3\tOFF\t4.5\t-13\t0.5\t4.7\t-15\t0.6\r\n"

const windcubeV2STA = "HeaderSize=4\n" +
	"Localisation=Site A\n" +
	"Altitudes (m)=40\t60\n" +
	"DirectionOffset (°)=0\n" +
	"Pulses / Line of Sight=5000\n" +
	"Timestamp (end of interval)\tInt Temp (°C)\t40m Wind Speed (m/s)\t40m Wind Speed Dispersion (m/s)\t60m Wind Speed (m/s)\t60m Wind Speed Dispersion (m/s)\n" +
	"2020/03/01 00:10\t21.5\t5.1\t0.4\t6.2\t0.5\n" +
	"2020/03/01 00:20\t21.6\t5.3\t0.3\t6.0\t0.6\n"

func TestWindcube_AcceptsByGeneration(t *testing.T) {
	dir := t.TempDir()
	v1 := writeEncoded(t, dir, "a.rtd", windcubeV1RTD, windows1252)
	v2 := writeFile(t, dir, "b.sta", windcubeV2STA)
	wrongExt := writeFile(t, dir, "c.txt", windcubeV2STA)

	gen1 := instrument.NewWindcube(instrument.WindcubeV1)
	gen2 := instrument.NewWindcube(instrument.WindcubeV2)

	assert.True(t, gen1.Accepts(v1))
	assert.False(t, gen2.Accepts(v1))
	assert.True(t, gen2.Accepts(v2))
	assert.False(t, gen1.Accepts(v2))
	assert.False(t, gen2.Accepts(wrongExt))
}

func TestWindcubeV1_Read(t *testing.T) {
	path := writeEncoded(t, t.TempDir(), "kassel.rtd", windcubeV1RTD, windows1252)
	wc := instrument.NewWindcube(instrument.WindcubeV1)

	src, err := wc.Read(path)
	require.NoError(t, err)

	assert.Equal(t, "rtd", src.Product)
	alts, ok := src.Header.List("Altitudes(m)")
	require.True(t, ok)
	assert.Equal(t, []float64{40, 60}, alts)
	site, _ := src.Header.String("Localisation")
	assert.Equal(t, "Kassel", site)
	assert.Equal(t, "Temperature (°C)", src.Labels[2], "windows-1252 degree sign decoded")
	assert.Len(t, src.Records, 4)
	assert.Equal(t, "windcube_v1_rtd_kassel", wc.DatasetName(src))
}

func TestWindcubeV1_CanonicalizeRTD(t *testing.T) {
	path := writeEncoded(t, t.TempDir(), "kassel.rtd", windcubeV1RTD, windows1252)
	wc := instrument.NewWindcube(instrument.WindcubeV1)
	src, err := wc.Read(path)
	require.NoError(t, err)

	b, rep, err := wc.Canonicalize(src, testOptions(t))
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Equal(t, 4, rep.Records)
	assert.Equal(t, 0, rep.Dropped())
	assert.Equal(t, []float64{40, 60}, b.Range)
	require.Equal(t, 4, b.Len())
	assert.True(t, b.Times[0].Equal(time.Date(2015, 6, 1, 12, 0, 0, 100_000_000, time.UTC)))

	assert.Equal(t, []float64{1.5, 1.7, 2.5, 2.7, 3.5, 3.7, 4.5, 4.7}, b.Data["VEL"].Floats)
	assert.Equal(t, []float64{-10, -12, -11, -13, -12, -14, -13, -15}, b.Data["CNR"].Floats)
	assert.Equal(t, []string{"OFF", "OFF", "ON", "OFF"}, b.Data["wiper_state"].Texts)
	assert.Equal(t, []float64{25.0, 25.1, 25.2, 25.3}, b.Data["T_internal"].Floats)

	assert.Equal(t, []float64{0, 0, 90, 180}, b.Data["azimuth_angle"].Floats)
	assert.Equal(t, []float64{90, 62, 62, 62}, b.Data["elevation_angle"].Floats)
	assert.Equal(t, domain.ScanDBS, b.ScanType)
	assert.Equal(t, []float64{float64(domain.ScanDBS)}, b.Data["scan_type"].Floats)

	assert.Equal(t, []float64{10}, b.Data["yaw"].Floats)
	assert.Equal(t, []float64{-0.25}, b.Data["roll"].Floats)
	assert.Equal(t, []float64{10000}, b.Data["n_spectra"].Floats)

	attrs := map[string]string{}
	for _, a := range b.Attributes {
		attrs[a.Key] = a.Value
	}
	assert.Equal(t, "Kassel", attrs["site"])
	assert.Equal(t, "windcube_v1", attrs["source_format"])
	assert.Equal(t, "rtd", attrs["source_product"])
}

func TestWindcubeV2_CanonicalizeSTA(t *testing.T) {
	path := writeFile(t, t.TempDir(), "site.sta", windcubeV2STA)
	wc := instrument.NewWindcube(instrument.WindcubeV2)
	src, err := wc.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "windcube_v2_sta_site_a", wc.DatasetName(src))

	b, _, err := wc.Canonicalize(src, testOptions(t))
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Equal(t, []float64{5.1, 6.2, 5.3, 6.0}, b.Data["WS"].Floats)
	assert.Equal(t, []float64{0.4, 0.5, 0.3, 0.6}, b.Data["WSstd"].Floats)
	assert.Equal(t, []float64{21.5, 21.6}, b.Data["T_internal"].Floats)
	assert.Equal(t, domain.ScanDBS, b.ScanType)
	assert.True(t, math.IsNaN(b.Data["pitch"].Floats[0]), "missing header parameter is NaN")
	assert.Equal(t, "2020-03-01T00:20:00Z", b.Data["time"].Texts[1])
}

func TestWindcube_CorruptRowDropped(t *testing.T) {
	content := windcubeV2STA + "2020/03/01 00:30\t21.7\t5.0\n"
	path := writeFile(t, t.TempDir(), "site.sta", content)
	wc := instrument.NewWindcube(instrument.WindcubeV2)
	src, err := wc.Read(path)
	require.NoError(t, err)

	b, rep, err := wc.Canonicalize(src, testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	require.NotNil(t, rep.Corruption)
	assert.Equal(t, 1, rep.Corruption.Dropped)
	assert.Equal(t, 1, rep.Dropped())
}

func TestWindcube_BadTimestamp(t *testing.T) {
	content := windcubeV2STA + "yesterday\t21.7\t5.0\t0.1\t6.1\t0.2\n"
	path := writeFile(t, t.TempDir(), "site.sta", content)
	wc := instrument.NewWindcube(instrument.WindcubeV2)
	src, err := wc.Read(path)
	require.NoError(t, err)

	_, _, err = wc.Canonicalize(src, testOptions(t))
	var tpe *domain.TimeParseError
	require.ErrorAs(t, err, &tpe)
	assert.Equal(t, "yesterday", tpe.Value)

	opts := testOptions(t)
	opts.SkipBadTimestamps = true
	b, rep, err := wc.Canonicalize(src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, rep.BadTimestamps)
}

func TestWindcube_MissingAltitudes(t *testing.T) {
	content := "HeaderSize=1\nLocalisation=Nowhere\nTimestamp\n"
	path := writeFile(t, t.TempDir(), "site.sta", content)
	_, err := instrument.NewWindcube(instrument.WindcubeV2).Read(path)

	var hfe *domain.HeaderFormatError
	require.ErrorAs(t, err, &hfe)
	assert.Equal(t, "Altitudes (m)", hfe.Parameter)
}
