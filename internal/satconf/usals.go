package satconf

import "math"

// Geostationary look angle constants.
const (
	earthFlattening = 1.0 / 298.257
	geoRadiusKm     = 42164.57 // earth centre to geostationary orbit
	earthRadiusKm   = 6378.14
)

// Atmospheric refraction polynomial for low elevations.
var refraction = [5]float64{0.58804392, -0.17941557, 0.29906946e-1, -0.25187400e-2, 0.82622101e-4}

// usalsFraction maps tenths of a degree to the sixteenths carried in the
// low nibble of a USALS command.
var usalsFraction = [10]uint16{0x00, 0x02, 0x03, 0x05, 0x06, 0x08, 0x0A, 0x0B, 0x0D, 0x0E}

// Site is the dish location. Latitude and Longitude are magnitudes in
// degrees; South and West select the hemisphere. Altitude is in km above
// the ellipsoid.
type Site struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	South     bool
	West      bool
}

// normalise returns signed latitude, longitude in [0,360) eastwards and the
// satellite longitude in the same convention.
func (s Site) normalise(satLon float64) (lat, lon, sat float64) {
	lat, lon, sat = s.Latitude, s.Longitude, satLon
	if s.South {
		lat = -lat
	}
	if s.West {
		lon = 360 - lon
	}
	if sat < 0 {
		sat += 360
	}
	return lat, lon, sat
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }

// LookAngle returns the azimuth and elevation in degrees of the satellite
// at satLon (negative west) seen from the site. Elevation is -99 when the
// satellite is below the horizon.
func LookAngle(site Site, satLon float64) (azimuth, elevation float64) {
	lat, lon, sat := site.normalise(satLon)
	return lookAngle(lat, lon, site.Altitude, sat)
}

func lookAngle(lat, lon, alt, sat float64) (azimuth, elevation float64) {
	sinLat := math.Sin(radians(lat))
	cosLat := math.Cos(radians(lat))
	rStation := earthRadiusKm / math.Sqrt(1-earthFlattening*(2-earthFlattening)*sinLat*sinLat)
	ra := (rStation + alt) * cosLat
	rz := rStation * (1 - earthFlattening) * (1 - earthFlattening) * sinLat

	rx := geoRadiusKm*math.Cos(radians(sat-lon)) - ra
	ry := geoRadiusKm * math.Sin(radians(sat-lon))
	north := -rx*sinLat - rz*cosLat
	zenith := rx*cosLat - rz*sinLat

	elGeometric := degrees(math.Atan(zenith / math.Sqrt(north*north+ry*ry)))
	x := math.Abs(elGeometric + 0.589)
	refr := math.Abs(refraction[0] + refraction[1]*x + refraction[2]*x*x +
		refraction[3]*x*x*x + refraction[4]*x*x*x*x)

	if north < 0 {
		azimuth = 180 + degrees(math.Atan(ry/north))
	} else {
		v := 360 + degrees(math.Atan(ry/north))
		azimuth = v - math.Floor(v/360)*360
	}

	if elGeometric > 10.2 {
		abs := radians(math.Abs(elGeometric))
		elevation = elGeometric + 0.01617*(math.Cos(abs)/math.Sin(abs))
	} else {
		elevation = elGeometric + refr
	}
	if zenith < -3000 {
		elevation = -99
	}
	return azimuth, elevation
}

// MotorAngle returns the signed USALS motor angle in tenths of a degree
// for the satellite at satLon. Positive turns towards the 0xE command
// direction, negative towards 0xD.
func MotorAngle(site Site, satLon float64) int {
	lat, lon, sat := site.normalise(satLon)
	az, el := lookAngle(lat, lon, site.Altitude, sat)

	radAz, radEl, radLat := radians(az), radians(el), radians(lat)
	a := -math.Cos(radEl) * math.Sin(radAz)
	b := math.Sin(radEl)*math.Cos(radLat) - math.Cos(radEl)*math.Sin(radLat)*math.Cos(radAz)

	value := 180 + degrees(math.Atan(a/b))
	if az > 270 {
		value += 180
		if value > 360 {
			value = 360 - (value - 360)
		}
	}
	if az < 90 {
		value = 180 - value
	}

	switch {
	case lat >= 0:
		ret := int(math.Round(math.Abs(180-value) * 10))
		if value >= 180 {
			ret = -ret
		}
		return ret
	case value < 180:
		return -int(math.Round(math.Abs(value) * 10))
	default:
		return int(math.Round(math.Abs(360-value) * 10))
	}
}

// USALSCommand encodes a motor angle into the two data bytes of a
// "goto angular position" command.
func USALSCommand(angle int) uint16 {
	cmd := uint16(0xE000)
	if angle < 0 {
		angle = -angle
		cmd = 0xD000
	}
	return cmd | (uint16(angle/10)*0x10 + usalsFraction[angle%10])
}
